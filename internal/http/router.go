/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package http

import (
    "time"

    "github.com/gin-gonic/gin"
    "github.com/mozilla/tsci/internal/config"
    "github.com/rs/zerolog"
)

func accessLog(log zerolog.Logger) gin.HandlerFunc {
    return func(c *gin.Context) {
        start := time.Now()
        c.Next()
        log.Info().
            Str("method", c.Request.Method).
            Str("path", c.Request.URL.Path).
            Int("status", c.Writer.Status()).
            Dur("took", time.Since(start)).
            Msg("http request")
    }
}

func NewRouter(cfg config.Config, log zerolog.Logger, h *Handlers) *gin.Engine {
    if cfg.AppEnv == "prod" {
        gin.SetMode(gin.ReleaseMode)
    }
    r := gin.New()
    r.Use(gin.Recovery(), accessLog(log))

    r.GET("/healthz", h.Health)

    admin := r.Group("/admin")
    {
        admin.GET("/last-run", h.LastRun)
        admin.POST("/run", h.TriggerRun)
    }
    return r
}
