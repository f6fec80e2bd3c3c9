// Command authflowd serves the authflow engine over JSON/HTTP.
//
// Every operation is POST /v1/{kind} with a JSON body, where kind is one of
// register, verify_email, credential_check, second_factor, complete_login,
// password_reset, complete_password_reset, enroll, verify_enrollment,
// disable_second_factor, status and regenerate_backup_codes. The last five
// need "Authorization: Bearer <access token>" and act on the session's
// account. POST /v1/logout revokes the presented session.
//
//	authflowd -config /etc/authflow/authflow.toml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/internal/logging"
	"github.com/MrEthical07/authflow/metrics/export/prometheus"
	"github.com/MrEthical07/authflow/notify"
	"github.com/MrEthical07/authflow/store/postgres"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to the TOML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintln(os.Stderr, "authflowd:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := authflow.LoadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := loadSettingsFromEnv(configPath)
	if err != nil {
		return err
	}

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logging.ParseLevel(st.Server.LogLevel),
	}))
	log := logging.NewSlogLogger(slogger)

	db, err := postgres.Open(ctx, st.Postgres.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if st.Postgres.Migrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     st.Redis.Addr,
		Password: st.Redis.Password,
		DB:       st.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	mailer, err := newMailer(st.Mail, log)
	if err != nil {
		return err
	}

	engine, err := authflow.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithStore(db).
		WithMailer(mailer).
		WithAuditSink(authflow.MultiSink{
			postgres.NewAuditSink(db.DB()),
			authflow.NewLoggerAuditSink(log.With("component", "audit")),
		}).
		WithLogger(slogger).
		Build()
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	defer engine.Close()

	srv := &http.Server{
		Addr:         st.Server.Listen,
		Handler:      newHandler(engine, log, st.Server.MaxBodyBytes, prometheus.NewPrometheusExporter(engine).Handler()),
		ReadTimeout:  st.Server.ReadTimeout,
		WriteTimeout: st.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), st.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMailer(s mailSettings, log logging.Logger) (authflow.Mailer, error) {
	switch s.Provider {
	case "", "log":
		return notify.NewLogMailer(log.With("component", "mail")), nil
	case "http":
		return notify.NewHTTPMailer(notify.HTTPConfig{
			BaseURL:        s.BaseURL,
			APIKey:         s.APIKey,
			From:           s.From,
			VerifyLinkBase: s.VerifyLinkBase,
			ResetLinkBase:  s.ResetLinkBase,
			RatePerSecond:  s.RatePerSecond,
			Burst:          s.Burst,
		})
	default:
		return nil, fmt.Errorf("unknown mail provider %q", s.Provider)
	}
}
