// Package app wires configuration, storage and services into a runnable
// process. Both the API server and the maintenance CLI start from here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/mymoney/internal/api"
	"github.com/punchamoorthee/mymoney/internal/config"
	"github.com/punchamoorthee/mymoney/internal/report"
	"github.com/punchamoorthee/mymoney/internal/service"
	"github.com/punchamoorthee/mymoney/internal/session"
	"github.com/punchamoorthee/mymoney/internal/store"
)

type App struct {
	Config *config.Config
	Log    *slog.Logger
	Store  *store.PostgresStore

	Accounts   *service.AccountService
	Ledger     *service.LedgerService
	Schedulers *service.SchedulerService
	Tags       *service.TagService
}

// New connects to PostgreSQL and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	weekStart, err := cfg.Weekday()
	if err != nil {
		return nil, err
	}

	db, err := store.NewPostgresStore(ctx, cfg.DBSource)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	ledger := service.NewLedgerService(db, weekStart, logger)
	return &App{
		Config:     cfg,
		Log:        logger,
		Store:      db,
		Accounts:   service.NewAccountService(db, logger),
		Ledger:     ledger,
		Schedulers: service.NewSchedulerService(db, ledger, weekStart, logger),
		Tags:       service.NewTagService(db),
	}, nil
}

func (a *App) Close() {
	a.Store.Close()
}

// Migrate applies the schema.
func (a *App) Migrate(ctx context.Context) error {
	return store.Migrate(ctx, a.Store.Db)
}

// Router builds the HTTP routes over sessions.
func (a *App) Router(sessions session.Store, perms api.Permissions) *mux.Router {
	weekStart, _ := a.Config.Weekday()
	h := api.NewHandler(api.Services{
		Store:      a.Store,
		Accounts:   a.Accounts,
		Ledger:     a.Ledger,
		Schedulers: a.Schedulers,
		Tags:       a.Tags,
		Ratio:      report.NewRatioReport(a.Store, sessions),
		Trend:      report.NewTrendReport(a.Store, sessions, weekStart),
	}, perms, a.Log)
	return api.NewRouter(h)
}

// Serve runs the HTTP server until ctx is cancelled, then drains it.
func (a *App) Serve(ctx context.Context) error {
	sessions, err := session.OpenSQLite(a.Config.SessionDB)
	if err != nil {
		return err
	}
	defer sessions.Close()

	srv := &http.Server{
		Addr:              ":" + a.Config.Port,
		Handler:           a.Router(sessions, api.HeaderPermissions{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.Log.Info("server starting", "port", a.Config.Port, "environment", a.Config.Env)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Log.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
