// Package notify posts run verdicts to a configured webhook endpoint.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/mitchellh/mapstructure"

	"hdlflow/flow"
)

var validate = validator.New()

// Config holds the webhook configuration with declarative tags.
type Config struct {
	URL         string            `json:"url" validate:"required,url"`
	Timeout     time.Duration     `json:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int               `json:"max_retries" default:"3" validate:"gte=0,lte=10"`
	RetryWaitMS int               `json:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	Headers     map[string]string `json:"headers"`
	Debug       bool              `json:"debug" default:"false"`
}

// payload is the JSON body posted to the webhook.
type payload struct {
	Design    string       `json:"design"`
	Backend   string       `json:"backend"`
	Strategy  string       `json:"strategy"`
	RunID     string       `json:"run_id"`
	Timestamp string       `json:"timestamp"`
	Verdict   flow.Verdict `json:"verdict"`
}

// Notifier delivers verdicts over HTTP with retries.
type Notifier struct {
	l      *slog.Logger
	cfg    Config
	client *resty.Client
}

// DecodeConfig turns the raw notify settings map into a validated Config.
func DecodeConfig(raw map[string]any) (Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to apply notify defaults: %w", err)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		TagName:     "json",
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, fmt.Errorf("failed to create notify decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, flow.NewConfigurationError(flow.CodeInvalidOptions, fmt.Sprintf("bad notify settings: %v", err))
	}

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("field %q failed rule %q", fe.Field(), fe.Tag()))
			}
			return cfg, flow.NewConfigurationError(flow.CodeInvalidOptions,
				"notify settings validation failed: "+strings.Join(msgs, "; "))
		}
		return cfg, flow.NewConfigurationError(flow.CodeInvalidOptions, fmt.Sprintf("notify settings validation failed: %v", err))
	}

	return cfg, nil
}

func New(l *slog.Logger, cfg Config) *Notifier {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(time.Duration(cfg.RetryWaitMS) * time.Millisecond).
		SetDebug(cfg.Debug)

	return &Notifier{
		l:      l,
		cfg:    cfg,
		client: client,
	}
}

// Notify posts the verdict of a finished run. Delivery failure is reported
// to the caller but never changes the verdict.
func (n *Notifier) Notify(ctx context.Context, design, backend, strategy, runID string, v flow.Verdict) error {
	body := payload{
		Design:    design,
		Backend:   backend,
		Strategy:  strategy,
		RunID:     runID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Verdict:   v,
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeaders(n.cfg.Headers).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(n.cfg.URL)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned %s", resp.Status())
	}

	n.l.Info("verdict delivered", "url", n.cfg.URL, "status", resp.StatusCode(), "run_id", runID)
	return nil
}
