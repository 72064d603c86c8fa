// cmd/ledgerctl/commands.go
package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/insulate/badminton-booking-sub002/internal/booking"
	"github.com/insulate/badminton-booking-sub002/internal/clock"
	"github.com/insulate/badminton-booking-sub002/internal/scheduler"
	"github.com/insulate/badminton-booking-sub002/internal/sequence"
)

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	seqCmd.AddCommand(seqNextCmd)
	rootCmd.AddCommand(migrateCmd, reapCmd, seqCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()
		return printVersion(cmd, database.MigrationVersion)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back every migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Successfully ran migrations down")
		return nil
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()
		return printVersion(cmd, database.MigrationVersion)
	},
}

func printVersion(cmd *cobra.Command, version func() (uint, bool, error)) error {
	v, dirty, err := version()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d, Dirty: %v\n", v, dirty)
	return nil
}

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Cancel pending bookings whose payment deadline has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		allocator, err := sequence.NewAllocator(database, nil)
		if err != nil {
			return err
		}
		resolver, err := booking.NewResolver(database, allocator,
			booking.WithCodePrefix(cfg.Booking.CodePrefix),
			booking.WithPaymentWindow(time.Duration(cfg.Booking.PaymentWindowMinutes)*time.Minute),
		)
		if err != nil {
			return err
		}
		reaper, err := scheduler.NewExpiryReaper(nil, resolver, clock.Real{}, nil)
		if err != nil {
			return err
		}
		result, err := reaper.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %d expired bookings\n", result.CancelledCount)
		return nil
	},
}

var seqCmd = &cobra.Command{
	Use:   "seq",
	Short: "Inspect and advance named sequences",
}

var seqNextCmd = &cobra.Command{
	Use:   "next <key>",
	Short: "Allocate the next value of a sequence",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, database, err := openDatabase()
		if err != nil {
			return err
		}
		defer database.Close()

		allocator, err := sequence.NewAllocator(database, nil)
		if err != nil {
			return err
		}
		n, err := allocator.NextValue(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), n)
		return nil
	},
}
