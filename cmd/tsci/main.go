/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package main

import (
    "context"
    "errors"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/mozilla/tsci/internal/adapters/bugzilla"
    "github.com/mozilla/tsci/internal/adapters/github"
    "github.com/mozilla/tsci/internal/adapters/sheets"
    "github.com/mozilla/tsci/internal/adapters/telegram"
    "github.com/mozilla/tsci/internal/adapters/tranco"
    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/fetch"
    apphttp "github.com/mozilla/tsci/internal/http"
    "github.com/mozilla/tsci/internal/jobs"
    "github.com/mozilla/tsci/internal/logger"
    "github.com/mozilla/tsci/internal/repo"
    "github.com/mozilla/tsci/internal/services"
)

func main() {
    cfg := config.Load()
    log := logger.New(cfg)

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    f := fetch.New(cfg, log)
    bz := bugzilla.NewClient(cfg, f, log)
    gh := github.NewRegistry(cfg, log).Client(cfg.GitHubKey)
    list := tranco.NewClient(cfg, f, log)
    publisher, err := sheets.NewClient(ctx, cfg, log)
    if err != nil { log.Fatal().Err(err).Msg("sheets client init failed") }

    var notifier services.Notifier
    if tg := telegram.NewClient(cfg, log); tg.Enabled() {
        notifier = tg
    }

    db := repo.MustOpen(ctx, cfg.DBDSN, log)
    defer db.Close()
    repository := repo.NewRepository(db)

    svc := services.New(cfg, log, repository, bz, gh, list, publisher, notifier)

    if cfg.RunOnce {
        if err := svc.RunOnce(ctx); err != nil {
            log.Fatal().Err(err).Msg("run failed")
        }
        log.Info().Msg("run complete")
        return
    }

    sched := jobs.NewScheduler(cfg, log, repository, svc)
    if err := sched.Start(); err != nil {
        log.Fatal().Err(err).Msg("cron init failed")
    }

    router := apphttp.NewRouter(cfg, log, apphttp.NewHandlers(log, svc))
    srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}
    go func() {
        log.Info().Str("addr", cfg.HTTPAddr).Msg("http: listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatal().Err(err).Msg("http server failed")
        }
    }()

    <-ctx.Done()
    log.Info().Msg("shutting down")
    sched.Stop()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        log.Error().Err(err).Msg("http shutdown failed")
    }
}
