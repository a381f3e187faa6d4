package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/smsexpensor/internal/daemon"
	"github.com/ArionMiles/smsexpensor/pkg/capture"
	"github.com/ArionMiles/smsexpensor/pkg/client"
	"github.com/ArionMiles/smsexpensor/pkg/dedup"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the capture → classify → write pipeline",
		Long: `Run reads messages with the configured reader plugin (EXPENSOR_READER), keeps
bank transaction messages, categorizes them and hands them to the configured writer
plugin (EXPENSOR_WRITER). Set HTTP_ADDR to also serve the read-side API.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx)
		},
	}
}

func (a *app) run(ctx context.Context) error {
	cls, err := a.classifier()
	if err != nil {
		return fmt.Errorf("loading classifier: %w", err)
	}
	lbls, err := a.labels()
	if err != nil {
		return fmt.Errorf("loading labels: %w", err)
	}

	pending := &capture.PendingSlot{}
	registry, err := newRegistry(pending, a.cfg.MaxBodyLength)
	if err != nil {
		return fmt.Errorf("registering plugins: %w", err)
	}

	a.logger.Info("configuration loaded",
		"reader", a.cfg.ReaderPlugin,
		"writer", a.cfg.WriterPlugin,
		"label_rules", lbls.Len(),
		"http_addr", a.cfg.HTTPAddr,
	)

	store, closeStore, err := a.dedupStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	scopes, err := registry.Scopes(a.cfg.ReaderPlugin, a.cfg.WriterPlugin)
	if err != nil {
		return err
	}
	if len(scopes) > 0 {
		a.logger.Info("OAuth scopes required", "scopes", scopes)
	}
	httpClient, err := client.New(ctx, client.Config{
		SecretFile:  a.secretFile,
		Scopes:      scopes,
		Interactive: true,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("creating http client: %w", err)
	}

	runner := daemon.New(registry, httpClient, daemon.Options{
		Classifier: cls,
		Labels:     lbls,
		Dedup:      store,
		Pending:    pending,
	}, a.logger)

	return runner.Run(ctx, a.cfg)
}

// dedupStore selects Redis when REDIS_ADDR is set and an in-memory window otherwise.
func (a *app) dedupStore(ctx context.Context) (dedup.Store, func(), error) {
	if a.cfg.RedisAddr == "" {
		return dedup.NewMemory(dedup.DefaultCapacity), func() {}, nil
	}

	rdb, err := dedup.Dial(ctx, a.cfg.RedisAddr)
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("using redis de-duplication", "addr", a.cfg.RedisAddr, "ttl", a.cfg.DedupTTL)

	closeFn := func() {
		if err := rdb.Close(); err != nil {
			a.logger.Warn("failed to close redis client", "error", err)
		}
	}
	return dedup.NewRedis(rdb, a.cfg.DedupTTL, ""), closeFn, nil
}
