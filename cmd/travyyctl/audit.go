package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/travyy/tour-booking-backend/internal/database"
	"github.com/travyy/tour-booking-backend/internal/models"
)

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit <orderId>",
		Short: "Print the payment audit trail of one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openPostgres()
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := database.NewPaymentAuditRepository(db, cliLogger(false)).GetByOrderID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no audit entries for %s", args[0])
			}
			return printAudits(cmd.OutOrStdout(), entries)
		},
	}
}

func mismatchesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "mismatches",
		Short: "List callbacks whose amount differed from the session total",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openPostgres()
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := database.NewPaymentAuditRepository(db, cliLogger(false)).GetAmountMismatches(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printAudits(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")
	return cmd
}

func printAudits(out io.Writer, entries []*models.PaymentAudit) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tORDER\tEVENT\tSOURCE\tRESULT\tEXPECTED\tRECEIVED\tERROR")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339),
			deref(e.OrderID),
			e.EventType,
			e.EventSource,
			optInt(e.ResultCode),
			optInt64(e.ExpectedAmount),
			optInt64(e.ReceivedAmount),
			deref(e.ErrorMessage))
	}
	return w.Flush()
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func optInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func optInt64(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
