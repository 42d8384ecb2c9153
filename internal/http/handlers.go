/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package http

import (
    "context"
    "net/http"

    "github.com/gin-gonic/gin"
    "github.com/mozilla/tsci/internal/services"
    "github.com/rs/zerolog"
)

type Handlers struct {
    log zerolog.Logger
    svc *services.Service
}

func NewHandlers(log zerolog.Logger, svc *services.Service) *Handlers {
    return &Handlers{log: log, svc: svc}
}

func (h *Handlers) Health(c *gin.Context) {
    c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) LastRun(c *gin.Context) {
    run, err := h.svc.GetLastRun(c.Request.Context())
    if err != nil {
        h.log.Error().Err(err).Msg("http: last run lookup failed")
        c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
        return
    }
    if run == nil {
        c.JSON(http.StatusNotFound, gin.H{"error": "no runs yet"})
        return
    }
    c.JSON(http.StatusOK, run)
}

// TriggerRun kicks off a pipeline run for the current week without waiting
// for it. State lives in the runs table, so the caller polls LastRun.
func (h *Handlers) TriggerRun(c *gin.Context) {
    go func() {
        if err := h.svc.RunWeekly(context.Background()); err != nil {
            h.log.Error().Err(err).Msg("http: triggered run failed")
        }
    }()
    c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
