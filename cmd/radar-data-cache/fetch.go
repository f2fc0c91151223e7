package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/radar-data-cache/internal/common"
	"github.com/i474232898/radar-data-cache/internal/radar"
	"github.com/i474232898/radar-data-cache/internal/radar/providers"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var (
		output  string
		timeArg string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download a single radar composite without touching the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.cfg

			var at *time.Time
			if timeArg != "" {
				ts, err := time.Parse(time.RFC3339, timeArg)
				if err != nil {
					return fmt.Errorf("invalid --time: %w", err)
				}
				at = &ts
			}

			if output == "" {
				ts := time.Now()
				if at != nil {
					ts = *at
				}
				output = radar.NormalizeTime(ts).Format("20060102T1504Z") + cfg.FileExtension
			}

			urls := providers.NewFMIURLBuilder(cfg.WMSURL, cfg.Variable, cfg.Width, cfg.Height)
			u, err := urls.BuildURL(cfg.APIKey, at)
			if err != nil {
				return err
			}

			runCtx, cancel := contextWithTimeout(cmd, cfg.FetchTimeout)
			defer cancel()

			fetcher := providers.NewHTTPFetcher(ctx.httpClient(), ctx.logger)
			if err := fetcher.Fetch(runCtx, u, output); err != nil {
				return err
			}

			info, err := os.Stat(output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", output, common.HumanBytes(info.Size()))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination file (default: <timestamp><extension>)")
	cmd.Flags().StringVar(&timeArg, "time", "", "Frame time in RFC3339 (default: now)")
	return cmd
}
