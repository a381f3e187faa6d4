package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/smsexpensor/pkg/api"
	"github.com/ArionMiles/smsexpensor/pkg/record"
)

type classifyOutput struct {
	Classification api.ClassificationResult `json:"classification"`
	Record         *api.TransactionRecord   `json:"record"`
	Category       string                   `json:"category,omitempty"`
}

func newClassifyCmd(a *app) *cobra.Command {
	var sender string

	cmd := &cobra.Command{
		Use:   "classify [message]",
		Short: "Classify one message and print the resulting record",
		Long:  "Classify one message given as an argument, or read from stdin when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body string
			if len(args) == 1 {
				body = args[0]
			} else {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading stdin: %w", err)
				}
				body = string(data)
			}
			body = strings.TrimSpace(body)
			if body == "" {
				return errors.New("message body is empty")
			}

			out, err := a.classify(body, sender, time.Now())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&sender, "sender", "s", "", "sender ID, e.g. VM-HDFCBK")
	return cmd
}

func (a *app) classify(body, sender string, now time.Time) (classifyOutput, error) {
	cls, err := a.classifier()
	if err != nil {
		return classifyOutput{}, err
	}
	lbls, err := a.labels()
	if err != nil {
		return classifyOutput{}, err
	}

	out := classifyOutput{
		Classification: cls.Classify(body, sender),
		Record: record.NewBuilder(cls).Build(api.RawMessage{
			Body:       body,
			Sender:     sender,
			ReceivedAt: now,
		}),
	}
	if out.Record != nil {
		out.Category = lbls.Lookup(body, out.Record.Direction)
	}
	return out, nil
}
