// Package assistant answers free text and narrates reports through an
// OpenAI-compatible chat completion API.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/penny/core/logger"
	"github.com/m3rciful/penny/internal/ledger"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("assistant: disabled")

// ErrEmptyAnswer is returned when the backend replies without a choice.
var ErrEmptyAnswer = errors.New("assistant: empty answer")

const (
	contextExpenses = 5
	maxErrorBody    = 512
)

// Expenses supplies recent spending used as chat context.
type Expenses interface {
	RecentExpenses(ctx context.Context, userID int64, limit int) ([]ledger.Expense, error)
}

// Message is one chat completion message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
	TopP        float64   `json:"top_p"`
}

type completionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// APIError is a non-2xx reply from the completion backend.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("assistant: status %d: %s", e.Status, e.Body)
}

// Assistant keeps a bounded conversation per chat.
type Assistant struct {
	cfg      Config
	http     *http.Client
	expenses Expenses

	mu      sync.Mutex
	history map[int64][]Message
}

// New builds an assistant. expenses may be nil.
func New(cfg Config, httpClient *http.Client, expenses Expenses) *Assistant {
	cfg.Normalize()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Assistant{
		cfg:      cfg,
		http:     httpClient,
		expenses: expenses,
		history:  make(map[int64][]Message),
	}
}

// Enabled reports whether the assistant can answer.
func (a *Assistant) Enabled() bool { return a != nil && a.cfg.Enabled() }

// Chat answers text from userID in chatID, replaying the chat's recent turns.
// The exchange is only remembered when the backend answers.
func (a *Assistant) Chat(ctx context.Context, chatID, userID int64, text string) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}
	content := text
	if a.expenses != nil {
		recent, err := a.expenses.RecentExpenses(ctx, userID, contextExpenses)
		if err != nil {
			logger.Warn(ctx, logger.ComponentAssistant, "assistant.context",
				slog.String("status", "fail"),
				slog.Any("err", err),
			)
		}
		content += expenseContext(recent)
	}
	user := Message{Role: "user", Content: content}

	msgs := append([]Message{{Role: "system", Content: chatPrompt}}, a.History(chatID)...)
	msgs = append(msgs, user)
	answer, err := a.complete(ctx, "chat", msgs, a.cfg.MaxTokens)
	if err != nil {
		return "", err
	}
	a.remember(chatID, user, Message{Role: "assistant", Content: answer})
	return answer, nil
}

// Report writes a financial report from d. It does not touch chat history.
func (a *Assistant) Report(ctx context.Context, d ReportData) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}
	return a.complete(ctx, "report", []Message{
		{Role: "system", Content: reportPrompt},
		{Role: "user", Content: d.render()},
	}, 2*a.cfg.MaxTokens)
}

// History returns a copy of the remembered messages for chatID.
func (a *Assistant) History(chatID int64) []Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Message(nil), a.history[chatID]...)
}

// Forget drops the conversation of chatID.
func (a *Assistant) Forget(chatID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.history, chatID)
}

func (a *Assistant) remember(chatID int64, msgs ...Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.history[chatID], msgs...)
	if limit := 2 * a.cfg.History; len(h) > limit {
		h = append([]Message(nil), h[len(h)-limit:]...)
	}
	a.history[chatID] = h
}

func (a *Assistant) complete(ctx context.Context, op string, msgs []Message, maxTokens int) (string, error) {
	raw, err := json.Marshal(completionRequest{
		Model:       a.cfg.Model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: a.cfg.Temperature,
		TopP:        0.95,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		logger.Warn(ctx, logger.ComponentAssistant, "assistant."+op,
			slog.String("status", "fail"),
			slog.Duration("duration", time.Since(start)),
			slog.Any("err", err),
		)
		return "", fmt.Errorf("assistant: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		aerr := &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		logger.Warn(ctx, logger.ComponentAssistant, "assistant."+op,
			slog.String("status", "fail"),
			slog.Int("code", resp.StatusCode),
			slog.Duration("duration", time.Since(start)),
			slog.String("body", logger.SanitizeLimit(aerr.Body, 200)),
		)
		return "", aerr
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("assistant: %s: decode: %w", op, err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", ErrEmptyAnswer
	}
	logger.Debug(ctx, logger.ComponentAssistant, "assistant."+op,
		slog.String("status", "ok"),
		slog.Duration("duration", time.Since(start)),
	)
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
