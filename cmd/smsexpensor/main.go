// Command smsexpensor turns bank SMS into categorized transactions.
package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/smsexpensor/pkg/classifier"
	"github.com/ArionMiles/smsexpensor/pkg/config"
	"github.com/ArionMiles/smsexpensor/pkg/labels"
	"github.com/ArionMiles/smsexpensor/pkg/logging"
)

var (
	//go:embed content/rules.json
	rulesInput []byte
	//go:embed content/labels.json
	labelsInput []byte
)

// app carries state shared by subcommands once the root has loaded configuration.
type app struct {
	configFile string
	envFile    string
	secretFile string

	cfg    config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "smsexpensor",
		Short:         "Turn bank SMS notifications into categorized transactions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML config file (keys as environment variables)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment")
	root.PersistentFlags().StringVar(&a.secretFile, "secrets", config.ClientSecretFile, "Google OAuth client secret file")

	root.AddCommand(
		newRunCmd(a),
		newClassifyCmd(a),
		newStatusCmd(a),
		newSetupCmd(a),
		newPluginsCmd(a),
	)
	return root
}

func (a *app) load() error {
	cfg, err := config.Load(config.Options{File: a.configFile, EnvFile: a.envFile})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.Setup(logging.NewConfig(cfg.LogLevel, cfg.LogFormat))
	return nil
}

// classifier builds the classifier from CLASSIFIER_FILE or the embedded lists.
func (a *app) classifier() (*classifier.Classifier, error) {
	data, err := config.ReadFile(a.cfg.ClassifierFile, rulesInput)
	if err != nil {
		return nil, err
	}
	cc, err := classifier.ParseConfig(data)
	if err != nil {
		return nil, err
	}
	return classifier.New(cc)
}

// labels builds the category rules from LABELS_FILE or the embedded rules.
func (a *app) labels() (*labels.Labels, error) {
	data, err := config.ReadFile(a.cfg.LabelsFile, labelsInput)
	if err != nil {
		return nil, err
	}
	return labels.Parse(data)
}
