package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/travyy/tour-booking-backend/pkg/jwt"
	"github.com/travyy/tour-booking-backend/pkg/validator"
)

func devTokenCmd() *cobra.Command {
	var (
		userID string
		phone  string
		roles  []string
	)
	cmd := &cobra.Command{
		Use:   "dev-token",
		Short: "Issue an access token for local testing",
		Long: `Issue an access token signed with JWT_SECRET.

Tokens are normally issued by the account service. This command exists
so the payment endpoints can be exercised locally.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to issue development tokens in production")
			}

			id := uuid.New()
			if userID != "" {
				if id, err = uuid.Parse(userID); err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}
			if phone != "" {
				if phone, err = validator.NewPhoneValidator().Validate(phone); err != nil {
					return fmt.Errorf("invalid --phone: %w", err)
				}
			}

			svc := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiry)
			token, err := svc.GenerateAccessToken(id, phone, roles)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "user_id=%s expires_in=%s\n", id, cfg.JWT.AccessTokenExpiry)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (random when empty)")
	cmd.Flags().StringVar(&phone, "phone", "", "mobile number used for expiry SMS")
	cmd.Flags().StringSliceVar(&roles, "roles", []string{"customer"}, "token roles")
	return cmd
}
