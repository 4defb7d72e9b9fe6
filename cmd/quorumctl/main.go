// quorumctl is the command line interface to the query orchestrator: it
// dispatches a query to the configured LLM providers, judges the
// responses, and records the outcome.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/quorumlabs/quorum/internal/domain"
	"github.com/quorumlabs/quorum/internal/orchestrator"
)

var (
	configPath string
	verbose    bool
)

func main() {
	root := &cobra.Command{
		Use:           "quorumctl",
		Short:         "Dispatch one query to multiple LLM providers and judge the responses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the YAML configuration file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newAskCmd(), newProvidersCmd(), newHistoryCmd(), newInvalidateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newAskCmd() *cobra.Command {
	var (
		providers []string
		scope     string
		deadline  time.Duration
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "ask [query]",
		Short: "Dispatch a query and print the judged result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), config, newLogger())
			if err != nil {
				return err
			}
			defer a.close()

			result, err := a.orchestrator.Orchestrate(cmd.Context(), args[0], providers, scope, deadline)
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			printResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&providers, "providers", "p", nil, "provider ids to dispatch to (default: all enabled)")
	cmd.Flags().StringVar(&scope, "scope", "", "cache scope, isolating this caller's cache entries")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "global dispatch deadline (default: from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the full result as JSON")
	return cmd
}

func printResult(cmd *cobra.Command, result orchestrator.Result) {
	out := cmd.OutOrStdout()

	if !result.Accepted() {
		fmt.Fprintf(out, "Query rejected: %s\n", result.Query.RejectReason)
		return
	}

	for _, id := range sortedProviderIDs(result.Responses) {
		env := result.Responses[id]
		switch {
		case env.IsSuccess() && env.Cached:
			fmt.Fprintf(out, "%-12s ok (cached)  $%.4f\n", id, env.CostUSD)
		case env.IsSuccess():
			fmt.Fprintf(out, "%-12s ok  %s  $%.4f\n", id, env.Latency.Round(time.Millisecond), env.CostUSD)
		default:
			fmt.Fprintf(out, "%-12s %s: %s\n", id, env.ErrorKind, env.ErrorMessage)
		}
	}
	for _, id := range result.UnknownIDs {
		fmt.Fprintf(out, "%-12s unknown provider\n", id)
	}

	fmt.Fprintln(out)
	if result.Decision.HasWinner() {
		fmt.Fprintf(out, "Winner: %s (%s)\n", result.Decision.Winner, result.Decision.Rationale)
		fmt.Fprintf(out, "Consensus: %.0f%%\n", result.Decision.Consensus*100)
		if len(result.Decision.CommonThemes) > 0 {
			fmt.Fprintf(out, "Themes: %v\n", result.Decision.CommonThemes)
		}
		fmt.Fprintln(out)
		fmt.Fprintln(out, result.Responses[result.Decision.Winner].Text)
	} else {
		fmt.Fprintf(out, "No winner: %s\n", result.Decision.Rationale)
	}
}

func newProvidersCmd() *cobra.Command {
	var validate bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List the configured providers and their live status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), config, newLogger())
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			status := a.registry.Status()
			for _, desc := range a.registry.Describe() {
				s := status[desc.ID]
				fmt.Fprintf(out, "%-12s model=%-32s enabled=%-5t credentials=%-5t circuit_open=%t\n",
					desc.ID, desc.Model, s.Enabled, s.HasCredentials, s.CircuitOpen)
			}

			if !validate {
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			failures := a.registry.ValidateProviders(ctx)
			if len(failures) == 0 {
				fmt.Fprintln(out, "all reachable providers validated")
				return nil
			}
			for id, err := range failures {
				fmt.Fprintf(out, "%-12s validation failed: %v\n", id, err)
			}
			return fmt.Errorf("%d provider(s) failed validation", len(failures))
		},
	}

	cmd.Flags().BoolVar(&validate, "validate", false, "probe each credentialed provider with a minimal request")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent judge decisions from the local database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			a, err := buildApp(cmd.Context(), config, newLogger())
			if err != nil {
				return err
			}
			defer a.close()

			decisions, err := a.sink.RecentDecisions(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, d := range decisions {
				winner := d.Winner
				if winner == "" {
					winner = "(none)"
				}
				fmt.Fprintf(out, "%s  %-10s %.3f  %s\n",
					d.DecidedAt.Format(time.RFC3339), winner, d.Combined, truncate(d.QueryText, 60))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of decisions to show")
	return cmd
}

func newInvalidateCmd() *cobra.Command {
	var (
		provider string
		scope    string
	)

	cmd := &cobra.Command{
		Use:   "invalidate [query]",
		Short: "Remove a cached response for one provider and query",
		Long: "Remove the cached response for the given provider, scope, and query text. " +
			"Only meaningful with a shared cache backend such as redis; the in-memory " +
			"cache does not outlive the process.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			responseCache, err := buildCache(cmd.Context(), config)
			if err != nil {
				return err
			}
			if closer, ok := responseCache.(interface{ Close() error }); ok {
				defer closer.Close()
			}

			key := domain.CacheKey(provider, scope, domain.NormalizeText(args[0]))
			if err := responseCache.Invalidate(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated cache entry for provider %s\n", provider)
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "", "provider id the entry belongs to")
	cmd.Flags().StringVar(&scope, "scope", "", "cache scope the entry was stored under")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}

func sortedProviderIDs(responses map[string]domain.ResponseEnvelope) []string {
	ids := make([]string, 0, len(responses))
	for id := range responses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
