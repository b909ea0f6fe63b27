package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/therapybridge/therapybridge/internal/auth"
	"github.com/therapybridge/therapybridge/internal/cleanup"
	"github.com/therapybridge/therapybridge/internal/clinical"
	"github.com/therapybridge/therapybridge/internal/config"
	"github.com/therapybridge/therapybridge/internal/db"
	"github.com/therapybridge/therapybridge/internal/metrics"
	"github.com/therapybridge/therapybridge/internal/notify"
	"github.com/therapybridge/therapybridge/internal/pipeline"
	"github.com/therapybridge/therapybridge/internal/server"
	"github.com/therapybridge/therapybridge/internal/transcribe"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, pipeline worker and cleanup scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "therapybridge.yaml", "path to TherapyBridge config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required to serve (or set OPENAI_API_KEY)")
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	metrics.Register()

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := openai.NewClient(option.WithAPIKey(cfg.OpenAI.APIKey))

	var notifier pipeline.Notifier
	if slack := notify.NewSlack(cfg.Slack.Token, cfg.Slack.Channel, log); slack != nil {
		notifier = slack
	}

	worker, err := pipeline.NewWorker(pipeline.Options{
		DB:                   gormDB,
		Transcriber:          transcribe.NewOpenAI(&client, cfg.Pipeline.TranscribeModel),
		Extractor:            clinical.NewOpenAIExtractor(&client, cfg.Pipeline.ExtractModel),
		Notifier:             notifier,
		Log:                  log,
		UploadDir:            cfg.Uploads.Dir,
		PollInterval:         cfg.PollInterval(),
		RequestTimeout:       cfg.RequestTimeout(),
		StaleClaimWindow:     cfg.StaleClaimWindow(),
		MaxTransientAttempts: cfg.Pipeline.MaxTransientAttempts,
	})
	if err != nil {
		return err
	}

	sweeper := cleanup.New(gormDB, cfg.Uploads.Dir, cfg.OrphanRetention(), cfg.FailedRetention(), log)

	srv, err := server.New(server.Options{
		DB:      gormDB,
		Config:  cfg,
		Issuer:  auth.NewTokenIssuer(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.AccessTokenMinutes)*time.Minute),
		Refresh: auth.NewRefreshStore(gormDB, time.Duration(cfg.Auth.RefreshTokenDays)*24*time.Hour),
		Queue:   worker.Queue(),
		Cleanup: sweeper,
		Log:     log,
	})
	if err != nil {
		return err
	}

	// Scheduled cleanup sweeps.
	sched := cron.New()
	if _, err := sched.AddFunc(cfg.Cleanup.Schedule, func() {
		if _, err := sweeper.Sweep(ctx, false); err != nil {
			log.Error().Err(err).Msg("scheduled cleanup sweep")
		}
	}); err != nil {
		return fmt.Errorf("cleanup schedule %q: %w", cfg.Cleanup.Schedule, err)
	}
	sched.Start()
	defer sched.Stop()

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- worker.Run(ctx)
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "TherapyBridge listening on :%d\n", cfg.Server.Port)
	if err := srv.Start(ctx); err != nil {
		stop()
		<-workerErr
		return err
	}

	if err := <-workerErr; err != nil && err != context.Canceled {
		return err
	}
	return nil
}
