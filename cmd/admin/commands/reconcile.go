package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rubenelhore/simonkey-identity/internal/config"
	"github.com/rubenelhore/simonkey-identity/internal/reconcile"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewReconcileCmd creates the reconcile command
func NewReconcileCmd() *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile duplicate accounts",
		Long:  "Collapse duplicate accounts sharing an email down to their canonical record. Scans every duplicated email unless --email is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			policy, err := config.LoadPolicy(cfg.PolicyFile)
			if err != nil {
				return fmt.Errorf("failed to load identity policy: %w", err)
			}

			records, err := store.NewPostgresStore(cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer func() {
				if err := records.Close(); err != nil {
					fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
				}
			}()

			reconciler := reconcile.NewReconciler(records, policy.Precedence(), zap.NewNop())
			ctx := context.Background()

			if email != "" {
				report, err := reconciler.ReconcileEmail(ctx, email)
				if err != nil {
					return fmt.Errorf("failed to reconcile %s: %w", email, err)
				}
				printGroupReport(report)
				return nil
			}

			report, err := reconciler.ReconcileAll(ctx)
			if err != nil {
				return fmt.Errorf("failed to run reconciliation pass: %w", err)
			}

			fmt.Printf("Scanned %d duplicated email group(s)\n", report.ScannedGroups)
			fmt.Printf("Deleted %d record(s), %d failure(s)\n", report.DeletedRecords, report.FailedRecords)
			for i := range report.Groups {
				fmt.Println()
				printGroupReport(&report.Groups[i])
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "reconcile only this email group")

	return cmd
}

func printGroupReport(r *reconcile.GroupReport) {
	fmt.Printf("Email: %s\n", r.Email)
	fmt.Printf("  Canonical: %s\n", r.CanonicalID)
	if len(r.DeletedIDs) == 0 && len(r.Errors) == 0 {
		fmt.Println("  No duplicates found")
		return
	}
	for _, id := range r.DeletedIDs {
		fmt.Printf("  Deleted: %s\n", id)
	}
	for _, recErr := range r.Errors {
		fmt.Printf("  Failed: %s (%s)\n", recErr.RecordID, recErr.Error)
	}
}
