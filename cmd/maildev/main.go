package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.io/razzkumar/maildev/internal/api"
	"github.io/razzkumar/maildev/internal/config"
	"github.io/razzkumar/maildev/internal/relay"
	"github.io/razzkumar/maildev/internal/session"
	"github.io/razzkumar/maildev/internal/smtpserver"
	"github.io/razzkumar/maildev/internal/sse"
	"github.io/razzkumar/maildev/internal/store"
)

var version = "dev"

const (
	sessionMaxAge = 30 * 24 * time.Hour
	sweepInterval = time.Hour
)

func main() {
	cmd := &cli.Command{
		Name:    "maildev",
		Usage:   "SMTP server and web API for capturing emails during development",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to a TOML config file"},
			&cli.IntFlag{Name: "web", Aliases: []string{"w"}, Usage: "Port to run the web API on"},
			&cli.StringFlag{Name: "web-ip", Usage: "IP address to bind the web API to"},
			&cli.IntFlag{Name: "smtp", Aliases: []string{"s"}, Usage: "SMTP port to catch emails on"},
			&cli.StringFlag{Name: "ip", Usage: "IP address to bind the SMTP server to"},
			&cli.StringFlag{Name: "db", Usage: "SQLite database path (in memory when empty)"},
			&cli.StringFlag{Name: "mail-directory", Usage: "Directory for persisting .eml files"},
			&cli.StringFlag{Name: "base-pathname", Usage: "Base path for the web API and UI"},
			&cli.StringFlag{Name: "outgoing-host", Usage: "SMTP host for relaying emails"},
			&cli.IntFlag{Name: "outgoing-port", Usage: "SMTP port for relaying emails"},
			&cli.StringFlag{Name: "outgoing-user", Usage: "SMTP user for relaying emails"},
			&cli.StringFlag{Name: "outgoing-pass", Usage: "SMTP password for relaying emails"},
			&cli.BoolFlag{Name: "outgoing-secure", Usage: "Use TLS when relaying emails"},
			&cli.StringFlag{Name: "log-format", Usage: "Log format: auto, text or json"},
			&cli.BoolFlag{Name: "verbose", Usage: "Enable debug logging"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	_ = godotenv.Load()
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	applyFlags(&cfg, cmd)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(os.Stdout, cfg.LogFormat, cfg.Verbose)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}

	sessions, err := session.New(cfg.SessionSecret, sessionMaxAge)
	if err != nil {
		return err
	}
	if cfg.SessionSecret == "" {
		logger.Warn("MAILDEV_SESSION_SECRET not set; sessions reset on restart")
	}

	if cfg.MailDirectory != "" {
		if err := os.MkdirAll(cfg.MailDirectory, 0o755); err != nil {
			return fmt.Errorf("create mail directory: %w", err)
		}
	}

	hub := sse.NewHub()
	ingester := smtpserver.NewIngester(db, hub, logger, cfg.MailDirectory)
	if loaded, err := ingester.LoadDirectory(ctx); err != nil {
		logger.Warn("load mail directory", "error", err)
	} else if loaded > 0 {
		logger.Info("loaded emails from directory", "count", loaded, "dir", cfg.MailDirectory)
	}

	relayClient := relay.NewClient(relay.Config{
		Host:     cfg.Outgoing.Host,
		Port:     cfg.Outgoing.Port,
		Username: cfg.Outgoing.User,
		Password: cfg.Outgoing.Pass,
		Secure:   cfg.Outgoing.Secure,
	}, logger)
	if relayClient.Enabled() {
		logger.Info("outgoing relay enabled", "host", cfg.Outgoing.Host)
	}

	apiServer := api.NewServer(cfg, version, api.Deps{
		Store:    db,
		Relayer:  relayClient,
		Loader:   ingester,
		Sessions: sessions,
		Hub:      hub,
	}, logger)

	smtpAuthCfg := smtpserver.AuthConfig{
		Enabled:  cfg.SMTPAuthEnabled,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	}
	if smtpAuthCfg.Enabled {
		logger.Info("smtp auth enabled", "username", smtpAuthCfg.Username)
	} else {
		logger.Warn("smtp auth disabled; server accepts unauthenticated connections")
	}
	smtpSrv := smtpserver.New(ingester, logger, net.JoinHostPort(cfg.SMTPIP, strconv.Itoa(cfg.SMTPPort)), smtpAuthCfg)

	httpAddr := net.JoinHostPort(cfg.HTTPIP, strconv.Itoa(cfg.HTTPPort))
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           apiServer,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := smtpSrv.ListenAndServe(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("smtp server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpAddr, "base", cfg.BasePath)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case now := <-ticker.C:
				if removed := sessions.Sweep(now); removed > 0 {
					logger.Debug("expired sessions removed", "count", removed)
				}
			}
		}
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown http", "error", err)
		}
		if err := smtpSrv.Close(); err != nil {
			logger.Error("shutdown smtp", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// applyFlags overrides configuration with the flags given on the command line.
func applyFlags(cfg *config.Config, cmd *cli.Command) {
	if cmd.IsSet("web") {
		cfg.HTTPPort = int(cmd.Int("web"))
	}
	if cmd.IsSet("web-ip") {
		cfg.HTTPIP = cmd.String("web-ip")
	}
	if cmd.IsSet("smtp") {
		cfg.SMTPPort = int(cmd.Int("smtp"))
	}
	if cmd.IsSet("ip") {
		cfg.SMTPIP = cmd.String("ip")
	}
	if cmd.IsSet("db") {
		cfg.DBPath = cmd.String("db")
	}
	if cmd.IsSet("mail-directory") {
		cfg.MailDirectory = cmd.String("mail-directory")
	}
	if cmd.IsSet("base-pathname") {
		cfg.BasePath = cmd.String("base-pathname")
	}
	if cmd.IsSet("outgoing-host") {
		cfg.Outgoing.Host = cmd.String("outgoing-host")
	}
	if cmd.IsSet("outgoing-port") {
		cfg.Outgoing.Port = int(cmd.Int("outgoing-port"))
	}
	if cmd.IsSet("outgoing-user") {
		cfg.Outgoing.User = cmd.String("outgoing-user")
	}
	if cmd.IsSet("outgoing-pass") {
		cfg.Outgoing.Pass = cmd.String("outgoing-pass")
	}
	if cmd.IsSet("outgoing-secure") {
		cfg.Outgoing.Secure = cmd.Bool("outgoing-secure")
	}
	if cmd.IsSet("log-format") {
		cfg.LogFormat = cmd.String("log-format")
	}
	if cmd.IsSet("verbose") {
		cfg.Verbose = cmd.Bool("verbose")
	}
}

// newLogger picks a text handler for terminals and JSON otherwise, unless
// the format is given explicitly.
func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if format == "auto" {
		format = "json"
		if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
