package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"example.com/recommendation/internal/analysis"
	"example.com/recommendation/internal/config"
	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/events"
	"example.com/recommendation/internal/logger"
	"example.com/recommendation/internal/oracle"
	"example.com/recommendation/internal/recommender"
)

type options struct {
	output  string
	timeout time.Duration
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "recommendctl",
		Short:         "Inspect and exercise the activity recommendation pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "json", "output format: json or yaml")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline stages to stderr")

	promptCmd := &cobra.Command{
		Use:   "prompt <event.json|->",
		Short: "Render the oracle prompt for an activity event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := readEvent(cmd, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), analysis.BuildPrompt(event))
			return err
		},
	}

	parseCmd := &cobra.Command{
		Use:   "parse <response.txt|->",
		Short: "Parse a captured oracle response into an analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			res := analysis.Parse(string(raw))
			return render(cmd.OutOrStdout(), opts.output, parseOutput{
				Degraded: res.Degraded,
				Reason:   res.Reason,
				Analysis: res.Analysis,
			})
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <event.json|->",
		Short: "Run one live oracle analysis for an event without persisting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event, err := readEvent(cmd, args[0])
			if err != nil {
				return err
			}
			cfg := config.Load()
			timeout := cfg.OracleTimeout
			if opts.timeout > 0 {
				timeout = opts.timeout
			}

			log := logger.NewNop()
			if opts.verbose {
				if log, err = logger.New("development"); err != nil {
					return err
				}
				defer log.Sync()
			}

			ai, err := oracle.New(cmd.Context(), oracle.Config{
				Backend: cfg.OracleBackend,
				URL:     cfg.OracleURL,
				Model:   cfg.OracleModel,
				APIKey:  cfg.OracleAPIKey,
				Timeout: timeout,
			})
			if err != nil {
				return err
			}

			gen, err := recommender.New(ai, nil,
				recommender.WithLogger(log),
				recommender.WithOracleTimeout(timeout),
				recommender.WithFailurePolicy(recommender.ParseFailurePolicy(cfg.OracleFailurePolicy)),
			).Generate(cmd.Context(), event)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, analyzeOutput{
				Degraded:       gen.Degraded,
				Reason:         gen.Reason,
				Recommendation: gen.Recommendation,
			})
		},
	}
	analyzeCmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "oracle deadline (defaults to ORACLE_TIMEOUT)")

	root.AddCommand(promptCmd, parseCmd, analyzeCmd)
	return root
}

type parseOutput struct {
	Degraded bool            `json:"degraded" yaml:"degraded"`
	Reason   string          `json:"reason,omitempty" yaml:"reason,omitempty"`
	Analysis domain.Analysis `json:"analysis" yaml:"analysis"`
}

type analyzeOutput struct {
	Degraded       bool                  `json:"degraded" yaml:"degraded"`
	Reason         string                `json:"reason,omitempty" yaml:"reason,omitempty"`
	Recommendation domain.Recommendation `json:"recommendation" yaml:"recommendation"`
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func readEvent(cmd *cobra.Command, path string) (domain.ActivityEvent, error) {
	raw, err := readInput(cmd, path)
	if err != nil {
		return domain.ActivityEvent{}, err
	}
	event, err := events.DecodeActivity(raw)
	if err != nil {
		return domain.ActivityEvent{}, fmt.Errorf("decode event %s: %w", path, err)
	}
	return event, nil
}

func render(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
