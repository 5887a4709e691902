package logger

import "strings"

// Component names shared by the bot's loggers.
const (
	ComponentApp        = "app"
	ComponentDB         = "db"
	ComponentMigrate    = "db.migrate"
	ComponentSeed       = "db.seed"
	ComponentTG         = "tg"
	ComponentTGWire     = "tg.wire"
	ComponentSender     = "tg.sender"
	ComponentFlow       = "flow"
	ComponentGateway    = "gateway"
	ComponentWebhook    = "webhook"
	ComponentCorrelator = "correlator"
	ComponentLedger     = "ledger"
	ComponentAssistant  = "assistant"
	ComponentHTTP       = "http"
)

// vocab is a closed set of values for one attribute. Values outside it are
// lowercased and, when strict, dropped from the record.
type vocab struct {
	values map[string]bool
	strict bool
}

func newVocab(strict bool, values ...string) vocab {
	v := vocab{values: make(map[string]bool, len(values)), strict: strict}
	for _, s := range values {
		v.values[s] = true
	}
	return v
}

var (
	// status describes how a step ended: a conversation step, a gateway
	// call, a send.
	statusVocab = newVocab(false,
		"ok", "fail", "skip", "retry", "rate_limited", "cancelled",
		"busy", "invalid", "dropped", "expired", "duplicate",
	)
	// outcome summarizes a whole handler run.
	outcomeVocab = newVocab(true, "ok", "fail", "cancelled", "rate_limited")
)

// normalize reports the canonical value and whether it belongs to the set.
func (v vocab) normalize(raw string) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	return s, s != "" && v.values[s]
}

// apply rewrites fields[key] in place.
func (v vocab) apply(fields map[string]any, key string) {
	raw, ok := fields[key].(string)
	if !ok || raw == "" {
		return
	}
	s, known := v.normalize(raw)
	if !known && v.strict {
		delete(fields, key)
		return
	}
	fields[key] = s
}

// levelName renders slog levels the way operators grep for them. WARNING
// and custom levels are kept upper case.
func levelName(level string) string {
	switch strings.ToLower(level) {
	case "":
		return "INFO"
	case "warning":
		return "WARN"
	}
	return strings.ToUpper(level)
}

// defaultKeyOrder puts the schema keys first so lines line up when tailing.
var defaultKeyOrder = []string{
	"ts", "level", "component", "event", "status",
	"rid", "rid_full", "ts_unix_nano",
	"update_id", "user_id", "chat_id", "chat_type", "kind",
	"handler", "flow", "state", "input",
	"cb_key", "outcome", "duration_ms", "messages", "kb",
	"payload", "username", "mode", "public_url",
	"tx_type", "tx_id", "execution_id", "endpoint_id", "amount", "category",
	"method", "route", "code", "http_code", "db", "host", "port",
	"err", "err_code", "cause", "retryable", "attempts", "backoff_ms",
	"count", "pending_count", "sessions", "swept",
}
