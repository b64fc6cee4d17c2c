package main

import (
	"fmt"
	"os"

	"github.com/rubenelhore/simonkey-identity/cmd/admin/commands"
	"github.com/spf13/cobra"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "simonkey-identity-admin",
		Short: "Admin tool for the Simonkey identity service",
		Long:  "CLI tool for inspecting user records and reconciling duplicate accounts",
	}

	rootCmd.AddCommand(commands.NewReconcileCmd())
	rootCmd.AddCommand(commands.NewInspectCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
