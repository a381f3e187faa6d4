// Command smsdump imports an mbox or SMS backup export and dumps every bank
// transaction message to its own file. The files serve as fixtures for unit tests.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/classifier"
	"github.com/ArionMiles/smsexpensor/pkg/logging"
	"github.com/ArionMiles/smsexpensor/pkg/reader/mbox"
	"github.com/ArionMiles/smsexpensor/pkg/reader/smsbackup"
	"github.com/ArionMiles/smsexpensor/pkg/record"
)

const defaultDumpDir = "testdata/dump"

var (
	unsafeChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\s]`)
	underscores = regexp.MustCompile(`_+`)
)

type options struct {
	format     string
	dir        string
	rulesFile  string
	withRecord bool
}

func main() {
	opts := options{}

	cmd := &cobra.Command{
		Use:          "smsdump <export file>",
		Short:        "Dump bank transaction messages from an export into fixture files",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, args []string) error {
			logger := logging.Setup(logging.DefaultConfig())
			return run(args[0], opts, logger)
		},
	}
	cmd.Flags().StringVar(&opts.format, "format", "", "export format: mbox or smsbackup (default: by file extension)")
	cmd.Flags().StringVarP(&opts.dir, "out", "o", defaultDumpDir, "output directory")
	cmd.Flags().StringVar(&opts.rulesFile, "rules", "", "classifier rules JSON (default: built-in lists)")
	cmd.Flags().BoolVar(&opts.withRecord, "record", false, "also write the extracted record next to each message")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(path string, opts options, logger *slog.Logger) error {
	cls, err := loadClassifier(opts.rulesFile)
	if err != nil {
		return err
	}

	scan, err := scanner(path, opts.format)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening export: %w", err)
	}
	defer f.Close()

	if err := os.MkdirAll(opts.dir, 0o755); err != nil {
		return fmt.Errorf("creating dump directory: %w", err)
	}

	d := &dumper{
		builder:    record.NewBuilder(cls),
		dir:        opts.dir,
		withRecord: opts.withRecord,
		logger:     logger,
	}
	if err := scan(f, d.dump, logger); err != nil {
		return err
	}

	logger.Info("sms dump complete",
		"scanned", d.scanned,
		"dumped", d.dumped,
		"directory", opts.dir,
	)
	return nil
}

type scanFunc func(io.Reader, func(*api.RawMessage) error, *slog.Logger) error

func scanner(path, format string) (scanFunc, error) {
	if format == "" {
		if strings.EqualFold(filepath.Ext(path), ".xml") {
			format = smsbackup.Source
		} else {
			format = mbox.Source
		}
	}

	switch format {
	case mbox.Source:
		return mbox.Scan, nil
	case smsbackup.Source:
		return smsbackup.Scan, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func loadClassifier(path string) (*classifier.Classifier, error) {
	if path == "" {
		return classifier.Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	cfg, err := classifier.ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return classifier.New(cfg)
}

type dumper struct {
	builder    *record.Builder
	dir        string
	withRecord bool
	logger     *slog.Logger

	scanned int
	dumped  int
}

func (d *dumper) dump(msg *api.RawMessage) error {
	d.scanned++

	rec := d.builder.Build(*msg)
	if rec == nil {
		return nil
	}

	name := sanitizeFilename(fmt.Sprintf("%s_%s_%s",
		msg.Source, msg.ReceivedAt.UTC().Format("2006-01-02_150405"), msg.Sender))
	filePath := filepath.Join(d.dir, name+".txt")

	if _, err := os.Stat(filePath); err == nil {
		d.logger.Debug("file already exists, skipping", "file", filePath)
		return nil
	}

	if err := os.WriteFile(filePath, []byte(msg.Body), 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	if d.withRecord {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		if err := os.WriteFile(filepath.Join(d.dir, name+".json"), data, 0o644); err != nil {
			return fmt.Errorf("writing record: %w", err)
		}
	}

	d.dumped++
	d.logger.Info("dumped message",
		"file", filePath,
		"sender", msg.Sender,
		"amount", rec.Amount,
		"direction", rec.Direction,
	)
	return nil
}

func sanitizeFilename(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = underscores.ReplaceAllString(name, "_")

	name = strings.Trim(name, "_")
	if len(name) > 200 {
		name = name[:200]
	}
	return name
}
