package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/travyy/tour-booking-backend/internal/database"
	"github.com/travyy/tour-booking-backend/internal/models"
)

func seedDepartureCmd() *cobra.Command {
	var (
		tourID     string
		name       string
		image      string
		date       string
		priceAdult int64
		priceChild int64
		seats      int
		closed     bool
	)
	cmd := &cobra.Command{
		Use:   "seed-departure",
		Short: "Create or update a tour departure",
		Long: `Create or update a tour departure.

Prices and status are updated on an existing departure. The seat counter
is only written on insert so live holds are never overwritten.`,
		Example: `  travyyctl seed-departure --name "Sa Pa Trekking" --date 2026-12-20 --adult 2000000 --child 1200000 --seats 20`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := time.Parse(models.DateLayout, date)
			if err != nil {
				return fmt.Errorf("invalid --date, want YYYY-MM-DD: %w", err)
			}
			if seats <= 0 {
				return fmt.Errorf("--seats must be positive")
			}

			id := uuid.New()
			if tourID != "" {
				if id, err = uuid.Parse(tourID); err != nil {
					return fmt.Errorf("invalid --tour: %w", err)
				}
			}

			status := models.DepartureStatusOpen
			if closed {
				status = models.DepartureStatusClosed
			}
			dep := &models.Departure{
				TourID:     id,
				TourName:   name,
				TourImage:  image,
				Date:       day,
				PriceAdult: priceAdult,
				PriceChild: priceChild,
				SeatsTotal: seats,
				SeatsLeft:  seats,
				Status:     status,
			}

			db, err := openPostgres()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.NewDepartureRepository(db).UpsertDeparture(cmd.Context(), dep); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tour_id=%s date=%s seats=%d status=%s\n", dep.TourID, dep.DateKey(), seats, status)
			return nil
		},
	}
	cmd.Flags().StringVar(&tourID, "tour", "", "tour id (new tour when empty)")
	cmd.Flags().StringVar(&name, "name", "", "tour name")
	cmd.Flags().StringVar(&image, "image", "", "tour image URL")
	cmd.Flags().StringVar(&date, "date", "", "departure date, YYYY-MM-DD")
	cmd.Flags().Int64Var(&priceAdult, "adult", 0, "adult price in VND")
	cmd.Flags().Int64Var(&priceChild, "child", 0, "child price in VND")
	cmd.Flags().IntVar(&seats, "seats", 0, "seat capacity")
	cmd.Flags().BoolVar(&closed, "closed", false, "create the departure closed for booking")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
