package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"cohort-copilot/core/config"
	"cohort-copilot/core/logger"
	"cohort-copilot/core/upstream"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	fetchHeadersFlag string
	fetchOutFlag     string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch [header-dump-file]",
	Args:  cobra.MaximumNArgs(1),
	Short: "Fetch the full preview dataset to a JSON file",
	Long: `Fetches every preview page from the cohort API and writes the combined
rows to a JSON file. Session details come from the configuration, or from a
browser header dump passed with --headers (request headers copied line by
line out of dev tools, including the cookie header and the pseudo-headers
that carry the preview URL).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cfg, err := config.LoadConfig(".")
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		logg, err := logger.New(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		dumpPath := fetchHeadersFlag
		if dumpPath == "" && len(args) > 0 {
			dumpPath = args[0]
		}

		upCfg := cfg.Upstream
		if dumpPath != "" {
			raw, err := os.ReadFile(dumpPath)
			if err != nil {
				return fmt.Errorf("failed to read header dump: %w", err)
			}
			dump := upstream.ParseHeaderDump(string(raw))
			if dump.URL != "" {
				base, path, perPage, err := upstream.ParsePreviewURL(dump.URL, upCfg.PageSize)
				if err != nil {
					return fmt.Errorf("header dump URL unusable: %w", err)
				}
				upCfg.APIBase = base
				upCfg.PreviewPath = path
				upCfg.PageSize = perPage
			}
			if cookie := dump.RequestHeaders["cookie"]; cookie != "" {
				upCfg.CookieHeader = cookie
			}
			if referer := dump.RequestHeaders["referer"]; referer != "" {
				upCfg.Referer = referer
			}
		}

		client, err := upstream.NewClient(upCfg)
		if err != nil {
			return fmt.Errorf("failed to create upstream client: %w", err)
		}

		logg.Info("Fetching preview pages (this might take a while)...",
			zap.String("source", client.SourceLabel()),
			zap.Int("page_size", client.PageSize()),
		)

		start := time.Now()
		rows, meta, err := client.FetchAllPreviewRows(ctx, client.PageSize())
		if err != nil {
			return fmt.Errorf("preview fetch failed: %w", err)
		}

		out := map[string]any{
			"rows_as_objects": rows,
			"source":          client.SourceLabel(),
			"meta":            meta,
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal dataset: %w", err)
		}
		if err := os.WriteFile(fetchOutFlag, data, 0644); err != nil {
			return fmt.Errorf("failed to save dataset: %w", err)
		}

		logg.Info("Dataset saved",
			zap.String("file", fetchOutFlag),
			zap.Int("rows", len(rows)),
			zap.Duration("took", time.Since(start)),
		)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchHeadersFlag, "headers", "", "path to a raw browser header dump")
	fetchCmd.Flags().StringVar(&fetchOutFlag, "out", "preview.json", "output file for the fetched dataset")
	RootCmd.AddCommand(fetchCmd)
}
