/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package jobs

import (
    "context"
    "time"

    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/repo"
    "github.com/mozilla/tsci/internal/services"
    "github.com/robfig/cron/v3"
    "github.com/rs/zerolog"
)

// weeklyLockKey serializes the weekly job across replicas.
const weeklyLockKey int64 = 771221

type Scheduler struct {
    cfg  config.Config
    log  zerolog.Logger
    repo *repo.Repository
    svc  *services.Service
    cron *cron.Cron
}

func NewScheduler(cfg config.Config, log zerolog.Logger, r *repo.Repository, svc *services.Service) *Scheduler {
    return &Scheduler{cfg: cfg, log: log, repo: r, svc: svc}
}

// Start registers the weekly pipeline and launches the scheduler.
func (s *Scheduler) Start() error {
    s.cron = cron.New(cron.WithLocation(time.Local))
    if _, err := s.cron.AddFunc(s.cfg.WeeklyCron, s.runWeekly); err != nil {
        return err
    }
    s.cron.Start()
    s.log.Info().Str("spec", s.cfg.WeeklyCron).Msg("cron: weekly job scheduled")
    return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
    if s.cron == nil { return }
    <-s.cron.Stop().Done()
}

func (s *Scheduler) runWeekly() {
    ctx := context.Background()
    got, err := s.repo.TryAdvisoryLock(ctx, weeklyLockKey)
    if err != nil {
        s.log.Error().Err(err).Msg("cron: advisory lock failed")
        return
    }
    if !got {
        s.log.Info().Msg("cron: weekly job already running elsewhere, skipping")
        return
    }
    defer func() {
        if err := s.repo.AdvisoryUnlock(ctx, weeklyLockKey); err != nil {
            s.log.Error().Err(err).Msg("cron: advisory unlock failed")
        }
    }()

    start := time.Now()
    if err := s.svc.RunWeekly(ctx); err != nil {
        s.log.Error().Err(err).Dur("took", time.Since(start)).Msg("cron: weekly run failed")
        return
    }
    s.log.Info().Dur("took", time.Since(start)).Msg("cron: weekly run finished")
}
