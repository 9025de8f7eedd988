package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dash/internal/config"
	"dash/internal/deploy"
	"dash/internal/notify"
	"dash/internal/oauth"
	"dash/internal/security"
	"dash/internal/server"
	"dash/internal/session"
	"dash/internal/store"
	"dash/internal/web"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepSchedule   = "@every 10m"
)

var (
	logFile string
	dbPath  string
	host    string
	port    int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	Long: `Start the HTTP server.

It serves the dashboard pages and the JSON API, and receives GitHub push
webhooks that schedule a restart of the bot.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&logFile, "log", "", "Path to log file (overrides log.file)")
	serveCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (overrides database.path)")
	serveCmd.Flags().StringVar(&host, "host", "", "Host to bind to (overrides server.host)")
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(problems, "\n"))
	}

	logger, logFileHandle, err := setupLogging(cfg.Log.File, parseLevel(cfg.Log.Level))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer logFileHandle.Close()

	logger.Info("Starting dash", "version", version, "config", path)
	for _, warning := range cfg.Warnings(path) {
		logger.Warn("Configuration warning", "warning", warning)
	}

	logger.Info("Opening database", "db", cfg.Database.Path)
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	sessions, err := session.NewStore([]byte(cfg.Session.Secret), cfg.Session.MaxAge, cfg.Session.Secure,
		session.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to create session store: %w", err)
	}
	sweeper, err := sessions.StartSweeper(sweepSchedule)
	if err != nil {
		return fmt.Errorf("failed to start session sweeper: %w", err)
	}

	pages, err := web.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	notifier := notify.NewDiscord(cfg.Notify.WebhookURL, cfg.Notify.LogURL, logger)

	restarter, err := deploy.NewCommandRestarter(cfg.Webhook.RestartCommand, cfg.Webhook.RestartDir,
		cfg.Webhook.RestartTimeout, cfg.Webhook.SudoPassword)
	if err != nil {
		return fmt.Errorf("invalid restart command: %w", err)
	}
	scheduler := deploy.NewScheduler(restarter,
		deploy.WithHistory(db),
		deploy.WithLogger(logger),
		deploy.WithOnComplete(func(job deploy.Job) {
			notifier.Log(fmt.Sprintf("restart %s: %s", job.ID, job.Status))
		}),
	)

	srv := server.NewServer(cfg, server.Dependencies{
		Store:    db,
		Sessions: sessions,
		OAuth: oauth.NewClient(oauth.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			RedirectURI:  cfg.OAuth.RedirectURI,
			Scopes:       cfg.OAuth.Scopes,
			AuthorizeURL: cfg.OAuth.AuthorizeURL,
			TokenURL:     cfg.OAuth.TokenURL,
			APIBaseURL:   cfg.OAuth.APIBaseURL,
		}),
		Notifier: notifier,
		Deployer: scheduler,
		Pages:    pages,
	}, logger)

	if _, err := sweeper.AddFunc(sweepSchedule, srv.SweepRateLimiters); err != nil {
		return fmt.Errorf("failed to schedule rate limiter sweep: %w", err)
	}

	if err := notifier.Started(cmd.Context(), cfg.BotName, version); err != nil {
		logger.Warn("Failed to send startup notification", "error", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("Server failed", "error", serveErr)
		}
	case sig := <-sigCh:
		logger.Info("Shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown failed", "error", err)
	}
	if err := scheduler.Stop(ctx); err != nil {
		logger.Warn("Restart still running at shutdown", "error", err)
	}
	<-sweeper.Stop().Done()
	notifier.Wait()

	logger.Info("Stopped")

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return fmt.Errorf("server failed: %w", serveErr)
	}
	return nil
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log") {
		cfg.Log.File = logFile
	}
	if flags.Changed("db") {
		cfg.Database.Path = dbPath
	}
	if flags.Changed("host") {
		cfg.Server.Host = host
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
}

// setupLogging configures slog for file logging
// Returns both the logger and the file handle (caller must close the file)
func setupLogging(logPath string, level slog.Level) (*slog.Logger, *os.File, error) {
	file, err := security.OpenAppendFile(logPath, security.PermLogFile)
	if err != nil {
		return nil, nil, err
	}

	// Log to both file and console
	multiWriter := io.MultiWriter(os.Stdout, file)

	handler := slog.NewJSONHandler(multiWriter, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler), file, nil
}
