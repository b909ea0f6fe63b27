package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/therapybridge/therapybridge/internal/cleanup"
	"github.com/therapybridge/therapybridge/internal/config"
	"github.com/therapybridge/therapybridge/internal/db"
)

func newCleanupCmd() *cobra.Command {
	var (
		configPath string
		dryRun     bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run one audio cleanup sweep",
		Long:  "Deletes orphaned uploads past the orphan retention window and failed-session audio past the failed retention window. Use --dry-run to list candidates without deleting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd, configPath, dryRun)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "therapybridge.yaml", "path to TherapyBridge config file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report candidates without deleting")
	return cmd
}

func runCleanup(cmd *cobra.Command, configPath string, dryRun bool) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	svc := cleanup.New(gormDB, cfg.Uploads.Dir, cfg.OrphanRetention(), cfg.FailedRetention(), log)
	result, err := svc.Sweep(cmd.Context(), dryRun)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintf(out, "Dry run — %d candidate file(s), %.1f MB:\n", len(result.DeletedFiles), result.SpaceFreedMB)
	} else {
		fmt.Fprintf(out, "Deleted %d file(s), freed %.1f MB:\n", len(result.DeletedFiles), result.SpaceFreedMB)
	}
	for _, name := range result.DeletedFiles {
		fmt.Fprintf(out, "  %s\n", name)
	}
	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "%d file(s) could not be processed:\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  %s\n", e)
		}
	}
	return nil
}
