/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package fetch

import (
    "context"
    "fmt"
    "io"
    "net/http"
    "regexp"
    "strings"
    "time"

    "github.com/mozilla/tsci/internal/config"
    "github.com/mozilla/tsci/internal/domain"
    "github.com/rs/zerolog"
)

var apiKeyRe = regexp.MustCompile(`([?&]api_key=)[^&]+`)

// Retrying performs HTTP GETs with a bounded retry on transient failures.
// Any connection error or non-2xx response counts as transient; a 200 with a
// malformed payload does not (callers validate payload shape themselves).
type Retrying struct {
    http     *http.Client
    attempts int
    delay    time.Duration
    log      zerolog.Logger
}

func New(cfg config.Config, log zerolog.Logger) *Retrying {
    attempts := cfg.RetryAttempts
    if attempts <= 0 { attempts = 3 }
    return &Retrying{
        http:     &http.Client{Timeout: cfg.HTTPTimeout},
        attempts: attempts,
        delay:    cfg.RetryDelay,
        log:      log,
    }
}

// Get fetches url and returns the response body. After the retry budget is
// spent it fails with a domain.FetchError wrapping the last error seen.
func (r *Retrying) Get(ctx context.Context, url string) ([]byte, error) {
    var lastErr error
    for attempt := 0; attempt < r.attempts; attempt++ {
        if attempt > 0 {
            r.log.Warn().Str("url", redact(url)).Err(lastErr).Msg("retrying query")
            select {
            case <-time.After(r.delay):
            case <-ctx.Done():
                return nil, &domain.FetchError{URL: redact(url), Err: ctx.Err()}
            }
        }
        req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
        if err != nil { return nil, &domain.FetchError{URL: redact(url), Err: err} }
        resp, err := r.http.Do(req)
        if err != nil { lastErr = err; continue }
        body, err := io.ReadAll(resp.Body)
        resp.Body.Close()
        if err != nil { lastErr = err; continue }
        if resp.StatusCode < 200 || resp.StatusCode >= 300 {
            lastErr = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
            continue
        }
        return body, nil
    }
    return nil, &domain.FetchError{URL: redact(url), Err: lastErr}
}

// redact strips credentials from a URL before it reaches a log line or error.
func redact(url string) string {
    return apiKeyRe.ReplaceAllString(url, "${1}<redacted>")
}
