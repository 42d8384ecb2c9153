/* Copyright (c) 2025 Mozilla Corporation
 * SPDX-License-Identifier: MPL-2.0 */
package telegram

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "time"

    "github.com/mozilla/tsci/internal/config"
    "github.com/rs/zerolog"
)

const apiBase = "https://api.telegram.org"

// Client sends run notifications through the Telegram bot API.
type Client struct {
    token string
    http  *http.Client
    log   zerolog.Logger
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
    return &Client{
        token: cfg.TelegramToken,
        http:  &http.Client{Timeout: cfg.HTTPTimeout},
        log:   log,
    }
}

// Enabled reports whether a bot token was configured.
func (c *Client) Enabled() bool { return c.token != "" }

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
    payload, err := json.Marshal(map[string]interface{}{
        "chat_id":                  chatID,
        "text":                     text,
        "disable_web_page_preview": true,
    })
    if err != nil { return err }

    url := fmt.Sprintf("%s/bot%s/sendMessage", apiBase, c.token)
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
    if err != nil { return err }
    req.Header.Set("Content-Type", "application/json")

    start := time.Now()
    resp, err := c.http.Do(req)
    if err != nil { return fmt.Errorf("telegram: send message: %w", err) }
    defer resp.Body.Close()

    var body struct {
        OK          bool   `json:"ok"`
        Description string `json:"description"`
    }
    if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
        return fmt.Errorf("telegram: decode response: %w", err)
    }
    if !body.OK {
        return fmt.Errorf("telegram: send message: %s", body.Description)
    }
    c.log.Debug().Int64("chat", chatID).Dur("took", time.Since(start)).Msg("telegram: message sent")
    return nil
}
