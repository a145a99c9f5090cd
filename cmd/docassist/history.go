package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deusflow/docassist/internal/domain"
	"github.com/deusflow/docassist/internal/format"
	"github.com/deusflow/docassist/internal/storage"
)

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Check the database connection and print the most recent results",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if cfg.DatabaseURL != "" {
				fmt.Fprintf(out, "Database: postgres %s\n\n", maskPassword(cfg.DatabaseURL))
			} else {
				fmt.Fprintf(out, "Database: sqlite %s\n\n", cfg.SQLitePath)
			}

			store, err := storage.Open(cmd.Context(), storage.Options{
				DatabaseURL: cfg.DatabaseURL,
				SQLitePath:  cfg.SQLitePath,
			})
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("read stats: %w", err)
			}
			printStats(out, stats)

			msgs, err := store.RecentMessages(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("read messages: %w", err)
			}
			printMessages(out, msgs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "number of messages to show")
	return cmd
}

func printStats(w io.Writer, stats map[string]int64) {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintln(w, "Statistics:")
	for _, k := range keys {
		fmt.Fprintf(w, "  %-20s %d\n", k, stats[k])
	}
}

func printMessages(w io.Writer, msgs []domain.Message) {
	fmt.Fprintf(w, "\nRecent results (%d):\n", len(msgs))
	if len(msgs) == 0 {
		fmt.Fprintln(w, "  (none yet)")
		return
	}
	for i, m := range msgs {
		label := string(m.Task)
		if m.SearchQuery != "" {
			label += ": " + m.SearchQuery
		}
		fmt.Fprintf(w, "  %d. [%s] %s\n", i+1, m.CreatedAt.Format("2006-01-02 15:04:05"), label)
		fmt.Fprintf(w, "     %s\n", preview(m.Content))
	}
}

func preview(content string) string {
	text, cut := format.Truncate(format.StripTags(content), 100)
	if cut {
		text += "..."
	}
	return text
}

// maskPassword hides the password part of a connection URL.
func maskPassword(dbURL string) string {
	at := strings.LastIndex(dbURL, "@")
	scheme := strings.Index(dbURL, "://")
	if at < 0 || scheme < 0 {
		if len(dbURL) > 50 {
			return dbURL[:30] + "***" + dbURL[len(dbURL)-20:]
		}
		return dbURL
	}
	creds := dbURL[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon >= 0 {
		creds = creds[:colon] + ":***"
	}
	return dbURL[:scheme+3] + creds + dbURL[at:]
}
