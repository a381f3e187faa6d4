package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/smsexpensor/pkg/client"
	"github.com/ArionMiles/smsexpensor/pkg/dedup"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check configuration, credentials and dependencies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			a.runStatus(ctx)
			return nil
		},
	}
}

// runStatus prints a checklist. It reports problems instead of failing on the first.
func (a *app) runStatus(ctx context.Context) {
	fmt.Println("=== smsexpensor status ===")
	fmt.Println()

	allGood := true
	fail := func(format string, args ...any) {
		fmt.Printf("✗ "+format+"\n", args...)
		allGood = false
	}

	scopes := a.checkPlugins(fail)
	if len(scopes) > 0 {
		a.checkCredentials(fail)
	}
	a.checkRedis(ctx, fail)
	a.checkEmbeddedData(fail)

	fmt.Println()
	if allGood {
		fmt.Println("Status: ✓ Ready to run")
		fmt.Println()
		fmt.Println("Run 'smsexpensor run' to start capturing transactions.")
	} else {
		fmt.Println("Status: ✗ Configuration issues detected")
		fmt.Println()
		fmt.Println("Fix the issues above, then run 'smsexpensor status' again.")
	}
}

func (a *app) checkPlugins(fail func(string, ...any)) []string {
	registry, err := newRegistry(nil, a.cfg.MaxBodyLength)
	if err != nil {
		fmt.Print("Plugins: ")
		fail("%v", err)
		return nil
	}

	fmt.Printf("Reader (%s): ", a.cfg.ReaderPlugin)
	if _, err := registry.Reader(a.cfg.ReaderPlugin); err != nil {
		fail("%v", err)
	} else {
		fmt.Println("✓ Registered")
	}

	fmt.Printf("Writer (%s): ", a.cfg.WriterPlugin)
	if _, err := registry.Writer(a.cfg.WriterPlugin); err != nil {
		fail("%v", err)
	} else {
		fmt.Println("✓ Registered")
	}

	scopes, err := registry.Scopes(a.cfg.ReaderPlugin, a.cfg.WriterPlugin)
	if err != nil {
		return nil
	}
	return scopes
}

func (a *app) checkCredentials(fail func(string, ...any)) {
	fmt.Printf("Client secret (%s): ", a.secretFile)
	if _, err := os.Stat(a.secretFile); err != nil {
		fail("Not found")
	} else {
		fmt.Println("✓ Found")
	}

	fmt.Printf("OAuth token (%s): ", client.DefaultTokenFile)
	tok, err := client.LoadToken(client.DefaultTokenFile)
	switch {
	case err != nil:
		fail("Not found (run 'smsexpensor setup')")
	case tok.Expiry.Before(time.Now()):
		fmt.Println("⚠ Expired (will refresh on next run)")
	default:
		fmt.Printf("✓ Valid (expires: %s)\n", tok.Expiry.Format(time.RFC3339))
	}
}

func (a *app) checkRedis(ctx context.Context, fail func(string, ...any)) {
	if a.cfg.RedisAddr == "" {
		fmt.Println("De-duplication: ✓ In memory")
		return
	}

	fmt.Printf("Redis (%s): ", a.cfg.RedisAddr)
	rdb, err := dedup.Dial(ctx, a.cfg.RedisAddr)
	if err != nil {
		fail("%v", err)
		return
	}
	defer rdb.Close()
	fmt.Printf("✓ Connected (ttl %s)\n", a.cfg.DedupTTL)
}

func (a *app) checkEmbeddedData(fail func(string, ...any)) {
	fmt.Print("Classifier: ")
	if _, err := a.classifier(); err != nil {
		fail("Invalid: %v", err)
	} else {
		fmt.Println("✓ Loaded")
	}

	fmt.Print("Labels: ")
	lbls, err := a.labels()
	if err != nil {
		fail("Invalid: %v", err)
	} else {
		fmt.Printf("✓ %d rules\n", lbls.Len())
	}
}
