package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/travyy/tour-booking-backend/internal/utils"
)

func secretsCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Generate a JWT signing secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := utils.GenerateSecret(size)
			if err != nil {
				return fmt.Errorf("failed to generate secret: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Add this to your .env file:")
			fmt.Fprintln(out)
			fmt.Fprintf(out, "JWT_SECRET=%s\n", secret)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "⚠️  Keep it out of version control.")
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "bytes", 64, "random bytes before encoding")
	return cmd
}
