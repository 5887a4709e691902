package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"

	coreconfig "github.com/m3rciful/penny/core/config"
)

func middlewareNames(mws []Middleware) []string {
	out := make([]string, 0, len(mws))
	for _, mw := range mws {
		out = append(out, mw.Name)
	}
	return out
}

func TestDefaultMiddlewares(t *testing.T) {
	assert.Equal(t, []string{"recover", "logger", "metrics"}, middlewareNames(DefaultMiddlewares(nil, nil)))

	cfg := &coreconfig.Config{}
	cfg.RateLimit.IntervalMS = 500
	cfg.RateLimit.ExcludeUpdates = []string{" Callback "}
	mws := DefaultMiddlewares(cfg, nop)
	assert.Equal(t, []string{"recover", "rate_limit", "logger", "metrics"}, middlewareNames(mws))
	for _, mw := range mws {
		assert.NotNil(t, mw.Use, mw.Name)
	}
}
