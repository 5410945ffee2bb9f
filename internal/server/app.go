// Package server initializes and runs the IdentKit server: it opens the
// database, runs migrations, loads or generates the signing key, starts the
// mail dispatcher and serves the HTTP API until a shutdown signal arrives.
package server

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/identkit/identkit/internal/logging"
	"github.com/identkit/identkit/internal/server/auth"
	"github.com/identkit/identkit/internal/server/config"
	"github.com/identkit/identkit/internal/server/httpapi"
	"github.com/identkit/identkit/internal/server/mailer"
	"github.com/identkit/identkit/internal/server/repositories/repomanager"
	"github.com/identkit/identkit/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	mail   *mailer.QueueDispatcher
	api    *httpapi.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	m := repomanager.NewPostgresRepositoryManager()
	if err := m.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	key, err := loadSigningKey(cfg, logger)
	if err != nil {
		return nil, err
	}

	var sender mailer.Sender
	if cfg.SendGridAPIKey != "" {
		sender = mailer.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailSender)
	} else {
		sender = mailer.NewLogSender(logger)
	}
	mail := mailer.NewQueueDispatcher(sender, logger)

	credentials := services.NewCredentialService(db, m, cfg, key)
	sessions := services.NewSessionService(db, m, cfg)
	accounts := services.NewAccountService(credentials, sessions, mail, cfg, logger)

	return &App{
		config: cfg,
		logger: logger,
		db:     db,
		mail:   mail,
		api:    httpapi.NewServer(accounts, credentials, logger),
	}, nil
}

func loadSigningKey(cfg *config.Config, logger logging.Logger) (*rsa.PrivateKey, error) {
	if cfg.PrivateKeyPath != "" {
		return auth.LoadPrivateKey(cfg.PrivateKeyPath)
	}
	logger.Warn(context.Background(), "no signing key configured, generating an ephemeral one")
	return auth.GenerateKey()
}

// Run serves until the context is cancelled or a termination signal arrives,
// then shuts down gracefully.
func (app *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app.initSignalHandler(cancel)
	app.drainMailFailures(ctx)

	go func() {
		app.logger.Info(ctx, "starting http server", "addr", app.config.EndpointAddrHTTP)
		if err := app.api.Start(app.config.EndpointAddrHTTP); err != nil {
			app.logger.Error(ctx, "http server error", "error", err.Error())
			cancel()
		}
	}()

	<-ctx.Done()
	app.shutdown()
}

func (app *App) initSignalHandler(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancel()
	}()
}

// drainMailFailures logs delivery failures from the out-of-band stream.
func (app *App) drainMailFailures(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case failure := <-app.mail.Failures():
				app.logger.Error(ctx, "mail delivery failed",
					"recipient", failure.Task.Recipient,
					"template", failure.Task.Template,
					"error", failure.Err.Error())
			}
		}
	}()
}

func (app *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	app.logger.Info(ctx, "shutting down")

	if err := app.api.Shutdown(ctx); err != nil {
		app.logger.Error(ctx, "http shutdown error", "error", err.Error())
	}
	app.mail.Close()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
