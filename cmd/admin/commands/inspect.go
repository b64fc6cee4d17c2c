package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/rubenelhore/simonkey-identity/internal/config"
	"github.com/rubenelhore/simonkey-identity/internal/models"
	"github.com/rubenelhore/simonkey-identity/internal/store"
	"github.com/spf13/cobra"
)

// NewInspectCmd creates the inspect command
func NewInspectCmd() *cobra.Command {
	var email string
	var recordID string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect user records",
		Long:  "Show the records holding an email, or a single record by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" && recordID == "" {
				return fmt.Errorf("one of --email or --id is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
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

			ctx := context.Background()

			if recordID != "" {
				rec, err := records.GetByID(ctx, recordID)
				if err != nil {
					return fmt.Errorf("failed to fetch record %s: %w", recordID, err)
				}
				printRecord(rec)
				return nil
			}

			group, err := records.GetByEmail(ctx, email)
			if err != nil {
				return fmt.Errorf("failed to fetch records for %s: %w", email, err)
			}
			if len(group) == 0 {
				fmt.Printf("No records hold %s\n", email)
				return nil
			}
			fmt.Printf("%d record(s) hold %s:\n\n", len(group), email)
			for _, rec := range group {
				printRecord(rec)
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "show all records holding this email")
	cmd.Flags().StringVar(&recordID, "id", "", "show a single record by id")

	return cmd
}

func printRecord(rec *models.UserRecord) {
	fmt.Printf("Record: %s\n", rec.RecordID)
	fmt.Printf("  Email: %s\n", rec.Email)
	fmt.Printf("  Class: %s\n", rec.AccountClass)
	if rec.LinkedExternalUID != nil {
		fmt.Printf("  Linked UID: %s\n", *rec.LinkedExternalUID)
	} else {
		fmt.Println("  Linked UID: (none)")
	}
	fmt.Printf("  Verified: %t (sent %d)\n", rec.Verification.IsVerified, rec.Verification.VerificationCount)
	fmt.Printf("  Created: %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05 MST"))
}
