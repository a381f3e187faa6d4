package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/smsexpensor/internal/plugins"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
	gmailplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/readers/gmail"
	mboxplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/readers/mbox"
	natsplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/readers/nats"
	smsbackupplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/readers/smsbackup"
	webhookplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/readers/webhook"
	csvplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/writers/csv"
	jsonplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/writers/json"
	kafkaplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/writers/kafka"
	postgresplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/writers/postgres"
	reportplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/writers/report"
	sheetsplugin "github.com/ArionMiles/smsexpensor/pkg/plugins/writers/sheets"
)

// newRegistry registers every built-in plugin.
func newRegistry(pending *capture.PendingSlot, maxBodyLength int) (*plugins.Registry, error) {
	registry := plugins.NewRegistry()

	readers := []plugins.ReaderPlugin{
		&webhookplugin.Plugin{Pending: pending, MaxBodyLength: maxBodyLength},
		&natsplugin.Plugin{MaxBodyLength: maxBodyLength},
		&gmailplugin.Plugin{MaxBodyLength: maxBodyLength},
		&mboxplugin.Plugin{MaxBodyLength: maxBodyLength},
		&smsbackupplugin.Plugin{MaxBodyLength: maxBodyLength},
	}
	for _, p := range readers {
		if err := registry.RegisterReader(p); err != nil {
			return nil, err
		}
	}

	writers := []plugins.WriterPlugin{
		&jsonplugin.Plugin{},
		&csvplugin.Plugin{},
		&sheetsplugin.Plugin{},
		&postgresplugin.Plugin{},
		&kafkaplugin.Plugin{},
		&reportplugin.Plugin{},
	}
	for _, p := range writers {
		if err := registry.RegisterWriter(p); err != nil {
			return nil, err
		}
	}

	return registry, nil
}

func newPluginsCmd(a *app) *cobra.Command {
	var showSchema bool

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List available reader and writer plugins",
		RunE: func(_ *cobra.Command, _ []string) error {
			registry, err := newRegistry(nil, a.cfg.MaxBodyLength)
			if err != nil {
				return err
			}

			fmt.Println("Readers:")
			for _, p := range registry.Readers() {
				printPlugin(p.Name(), p.Description(), p.RequiredScopes(), p.ConfigSchema(), showSchema)
			}
			fmt.Println()
			fmt.Println("Writers:")
			for _, p := range registry.Writers() {
				printPlugin(p.Name(), p.Description(), p.RequiredScopes(), p.ConfigSchema(), showSchema)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSchema, "schema", false, "print each plugin's config schema")
	return cmd
}

func printPlugin(name, description string, scopes []string, schema map[string]any, showSchema bool) {
	fmt.Printf("  %-10s %s\n", name, description)
	if len(scopes) > 0 {
		fmt.Printf("  %-10s needs Google authorization (run setup)\n", "")
	}
	if showSchema {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("    ", "  ")
		fmt.Print("    ")
		_ = enc.Encode(schema)
	}
}
