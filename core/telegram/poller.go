package telegram

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/penny/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	RunModeWebhook  = "webhook"
	RunModeLongpoll = "longpoll"

	secretHeader      = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBody     = 1 << 20
	defaultUpdateWait = 5 * time.Second
)

// WebhookOptions declares how Telegram reaches the shared HTTP server.
type WebhookOptions struct {
	// PublicURL is the full URL registered with Telegram (base + path).
	PublicURL   string
	SecretToken string
	// DropPending discards updates queued while the bot was offline.
	DropPending bool
}

// PollerOptions configures BuildPoller.
type PollerOptions struct {
	RunMode                string
	LongPollTimeoutSeconds int
	Webhook                WebhookOptions
}

// BuildPoller returns a long poller, or a WebhookPoller whose handler must
// be mounted on the application's HTTP server.
func BuildPoller(opts PollerOptions) tele.Poller {
	runMode := strings.ToLower(strings.TrimSpace(opts.RunMode))
	if runMode == RunModeWebhook {
		return NewWebhookPoller(opts.Webhook)
	}

	timeoutSec := opts.LongPollTimeoutSeconds
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	return &tele.LongPoller{Timeout: time.Duration(timeoutSec) * time.Second}
}

// WebhookPoller registers the webhook with Telegram and feeds the updates
// posted to its ServeHTTP into the bot. It never listens on its own; the
// handler shares the application's router.
type WebhookPoller struct {
	webhook *tele.Webhook
	updates chan tele.Update
	errc    chan error
	wait    time.Duration
}

// NewWebhookPoller builds a poller for opts.
func NewWebhookPoller(opts WebhookOptions) *WebhookPoller {
	return &WebhookPoller{
		webhook: &tele.Webhook{
			SecretToken: opts.SecretToken,
			DropUpdates: opts.DropPending,
			Endpoint:    &tele.WebhookEndpoint{PublicURL: opts.PublicURL},
		},
		updates: make(chan tele.Update, 64),
		errc:    make(chan error, 1),
		wait:    defaultUpdateWait,
	}
}

// PublicURL is the address registered with Telegram.
func (p *WebhookPoller) PublicURL() string { return p.webhook.Endpoint.PublicURL }

// Err reports a failed webhook registration; the runtime stops on it.
func (p *WebhookPoller) Err() <-chan error { return p.errc }

// Poll registers the webhook and forwards received updates until stopped.
func (p *WebhookPoller) Poll(b *tele.Bot, dest chan tele.Update, stop chan struct{}) {
	if err := b.SetWebhook(p.webhook); err != nil {
		logger.Error(context.Background(), logger.ComponentTG, "webhook.register",
			slog.String("status", "fail"),
			slog.String("public_url", p.webhook.Endpoint.PublicURL),
			slog.Any("err", err),
		)
		select {
		case p.errc <- err:
		default:
		}
		return
	}
	logger.Info(context.Background(), logger.ComponentTG, "webhook.register",
		slog.String("status", "ok"),
		slog.String("public_url", p.webhook.Endpoint.PublicURL),
	)
	for {
		select {
		case upd := <-p.updates:
			select {
			case dest <- upd:
			case <-stop:
				return
			}
		case <-stop:
			return
		}
	}
}

// ServeHTTP accepts one update from Telegram. Requests without the
// configured secret token are rejected before the body is read.
func (p *WebhookPoller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if p.webhook.SecretToken != "" && r.Header.Get(secretHeader) != p.webhook.SecretToken {
		logger.Warn(r.Context(), logger.ComponentTG, "webhook.update",
			slog.String("status", "rejected"),
			slog.String("reason", "secret_token"),
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var upd tele.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBody)).Decode(&upd); err != nil {
		logger.Warn(r.Context(), logger.ComponentTG, "webhook.update",
			slog.String("status", "rejected"),
			slog.String("reason", "decode"),
			slog.Any("err", err),
		)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	timer := time.NewTimer(p.wait)
	defer timer.Stop()
	select {
	case p.updates <- upd:
		w.WriteHeader(http.StatusOK)
	case <-r.Context().Done():
		w.WriteHeader(http.StatusServiceUnavailable)
	case <-timer.C:
		// Telegram redelivers on non-2xx.
		logger.Warn(r.Context(), logger.ComponentTG, "webhook.update",
			slog.String("status", "busy"),
			slog.Int("update_id", upd.ID),
		)
		w.WriteHeader(http.StatusServiceUnavailable)
	}
}
