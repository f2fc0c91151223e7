package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/i474232898/radar-data-cache/internal/radar"
	"github.com/i474232898/radar-data-cache/internal/radar/providers"
)

func newAvailableCommand(ctx *commandContext) *cobra.Command {
	var (
		since       time.Duration
		from        string
		to          string
		storedQuery string
	)

	cmd := &cobra.Command{
		Use:   "available",
		Short: "List radar composites published by FMI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg

			now := time.Now().UTC()
			q := radar.Query{StoredQueryID: storedQuery}
			switch {
			case from != "":
				start, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
				q.Start = start
			case since > 0:
				q.Start = now.Add(-since)
			}
			if to != "" {
				end, err := time.Parse(time.RFC3339, to)
				if err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
				q.End = end
			}

			runCtx, cancel := contextWithTimeout(cmd, cfg.HTTPTimeout)
			defer cancel()

			catalog := providers.NewFMICatalog(ctx.httpClient(), cfg.APIKey, cfg.WFSURL, cfg.StoredQuery, ctx.logger)
			frames, err := catalog.AvailableMaps(runCtx, q)
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.SetOutputMirror(cmd.OutOrStdout())
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"#", "Time (UTC)", "Age", "URL"})
			for i, f := range frames {
				tw.AppendRow(table.Row{
					strconv.Itoa(i + 1),
					f.Time.Format(time.RFC3339),
					humanize.RelTime(f.Time, now, "ago", "from now"),
					f.URL,
				})
			}
			tw.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d frames", len(frames))})
			tw.Render()
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", time.Hour, "How far back to list when --from is not set")
	cmd.Flags().StringVar(&from, "from", "", "Start time in RFC3339")
	cmd.Flags().StringVar(&to, "to", "", "End time in RFC3339 (default: service default)")
	cmd.Flags().StringVar(&storedQuery, "stored-query", "", "WFS stored query (default: configured)")
	return cmd
}

func contextWithTimeout(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
