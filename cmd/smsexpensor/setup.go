package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/smsexpensor/pkg/client"
)

func newSetupCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Authorize access to Gmail and Google Sheets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runSetup(cmd, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-authenticate even when a token is cached")
	return cmd
}

func (a *app) runSetup(cmd *cobra.Command, force bool) error {
	fmt.Println("=== smsexpensor setup ===")
	fmt.Println()

	if _, err := os.Stat(a.secretFile); os.IsNotExist(err) {
		return fmt.Errorf("client secret not found: %s\n\nTo get one:\n"+
			"1. Go to https://console.cloud.google.com/apis/credentials\n"+
			"2. Create an OAuth 2.0 Client ID (Desktop application)\n"+
			"3. Download the JSON file and save it as '%s'", a.secretFile, a.secretFile)
	}

	if !force {
		if _, err := client.LoadToken(client.DefaultTokenFile); err == nil {
			fmt.Printf("Already authenticated. Token file exists: %s\n", client.DefaultTokenFile)
			fmt.Println()
			fmt.Println("To re-authenticate, run: smsexpensor setup --force")
			return nil
		}
	}

	fmt.Println("Required permissions:")
	fmt.Println("  - Gmail: read forwarded SMS and mark them as read")
	fmt.Println("  - Sheets: append transactions to a spreadsheet")
	fmt.Println()

	registry, err := newRegistry(nil, a.cfg.MaxBodyLength)
	if err != nil {
		return err
	}

	err = client.Authorize(cmd.Context(), client.Config{
		SecretFile: a.secretFile,
		Scopes:     registry.AllScopes(),
	}, a.logger)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}

	fmt.Println()
	fmt.Printf("Token saved to: %s\n", client.DefaultTokenFile)
	fmt.Println("Run 'smsexpensor status' to verify the configuration.")
	return nil
}
