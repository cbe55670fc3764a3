package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/deusflow/newsdigest/internal/app"
	"github.com/deusflow/newsdigest/internal/metrics"
)

var (
	flagChat      int64
	flagOlderThan time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "newsdigest",
	Short:         "RSS news digest bot for Telegram",
	Long:          "newsdigest fetches RSS feeds per category, picks a ranked, source-diverse set of fresh stories and delivers it to Telegram chats.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot with scheduled digests",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if a.Config.EnableHTTPMonitoring {
				app.StartMonitoring(ctx, a.Config.MonitoringPort, app.MonitoringHandler(metrics.Global, a.Store, a.Limiter))
			}
			err := a.RunBot(ctx)
			if errors.Is(err, context.Canceled) {
				log.Info().Msg("Shutting down")
				return nil
			}
			return err
		})
	},
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Build one digest and print it, or send it with --chat",
	Long: `Build a digest once.

Without --chat the message is printed to stdout and still recorded as sent,
so a following build skips the same stories.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if flagChat == 0 {
				res := a.Digest.Build(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), res.Text)
				return nil
			}

			sender, err := a.NewSender()
			if err != nil {
				return err
			}
			res := a.Digest.Build(ctx)
			return sender.Send(ctx, flagChat, res.Text)
		})
	},
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Remove fingerprints older than the retention horizon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			if flagOlderThan > 0 {
				a.Retention = flagOlderThan
			}
			removed, err := a.Purge(ctx)
			if err != nil {
				return fmt.Errorf("purging: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %d fingerprint(s) older than %s.\n", removed, a.Retention)
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			stats, err := a.Store.Stats(ctx)
			if err != nil {
				return fmt.Errorf("reading stats: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Store: %s\n", a.Config.StoreDriver)
			fmt.Fprintf(out, "Fingerprints: %d\n", stats.Total)
			fmt.Fprintf(out, "Subscribers: %d\n", stats.Subscribers)

			cats := make([]string, 0, len(stats.ByCategory))
			for c := range stats.ByCategory {
				cats = append(cats, c)
			}
			sort.Strings(cats)
			for _, c := range cats {
				fmt.Fprintf(out, "  %-8s %d\n", c, stats.ByCategory[c])
			}
			return nil
		})
	},
}

func init() {
	digestCmd.Flags().Int64Var(&flagChat, "chat", 0, "send the digest to this Telegram chat id")
	purgeCmd.Flags().DurationVar(&flagOlderThan, "older-than", 0, "override the retention horizon (e.g. 72h)")

	rootCmd.AddCommand(botCmd, digestCmd, purgeCmd, statsCmd)
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
