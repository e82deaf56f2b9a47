package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobatlas/internal/ingest"
)

var (
	importPagesFlag   int
	importPerPageFlag int
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Run the ingestion pipeline once",
	Long:  "Fetches the configured pages from the upstream source, normalizes and geocodes them, and upserts into the store. With a profiles file configured, runs each profile back to back.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var summary ingest.Summary
		if cfg.Import.ProfilesPath != "" {
			profiles, err := ingest.LoadProfiles(cfg.Import.ProfilesPath)
			if err != nil {
				return err
			}
			zap.L().Info("running import profiles", zap.Int("profiles", len(profiles)))
			summary, err = env.Importer.RunProfiles(ctx, profiles)
			if err != nil {
				return err
			}
		} else {
			pages := importPagesFlag
			if pages == 0 {
				pages = cfg.Import.Pages
			}
			perPage := importPerPageFlag
			if perPage == 0 {
				perPage = cfg.Import.PerPage
			}
			summary, err = env.Importer.Run(ctx, importPages(pages), perPage)
			if err != nil {
				return err
			}
		}

		fmt.Printf("imported %d jobs\n", summary.Imported)
		return nil
	},
}

func init() {
	importCmd.Flags().IntVar(&importPagesFlag, "pages", 0, "number of pages to fetch (default from config)")
	importCmd.Flags().IntVar(&importPerPageFlag, "per-page", 0, "results per page (default from config)")
	rootCmd.AddCommand(importCmd)
}
