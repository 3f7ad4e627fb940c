package response

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lifeline-care/crisis/internal/crisis/config"
	apperrors "github.com/lifeline-care/crisis/internal/shared/errors"
	"github.com/lifeline-care/crisis/internal/shared/logging"
	"github.com/lifeline-care/crisis/internal/shared/metrics"
)

// Launcher asks the client platform to open a tel:, sms: or https: URI.
type Launcher interface {
	Open(ctx context.Context, uri string) error
}

// SchemeLauncher accepts URIs whose scheme the client is known to handle.
// It stands in for the device "can open URL" check on the server side.
type SchemeLauncher struct {
	allowed map[string]bool
}

// NewSchemeLauncher creates a launcher for the given schemes
// (tel, sms and https when none are given).
func NewSchemeLauncher(schemes ...string) *SchemeLauncher {
	if len(schemes) == 0 {
		schemes = []string{"tel", "sms", "https"}
	}
	allowed := make(map[string]bool, len(schemes))
	for _, s := range schemes {
		allowed[strings.ToLower(s)] = true
	}
	return &SchemeLauncher{allowed: allowed}
}

// Open returns an error when the scheme cannot be handled
func (l *SchemeLauncher) Open(ctx context.Context, uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid uri: %w", err)
	}
	if !l.allowed[strings.ToLower(u.Scheme)] {
		return fmt.Errorf("scheme %q is not supported on this device", u.Scheme)
	}
	return ctx.Err()
}

// ActionOutcome is the resolved result of an outbound action request. It is
// always returned; failures are described in Error for the user.
type ActionOutcome struct {
	Action         string `json:"action"`
	URI            string `json:"uri,omitempty"`
	Delivered      bool   `json:"delivered"`
	Error          string `json:"error,omitempty"`
	FallbackNumber string `json:"fallbackNumber,omitempty"`

	Err error `json:"-"`
}

// Dispatcher issues call, text and URL requests with a timeout.
type Dispatcher struct {
	launcher Launcher
	timeout  time.Duration
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(launcher Launcher, timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if launcher == nil {
		launcher = NewSchemeLauncher()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Dispatcher{
		launcher: launcher,
		timeout:  timeout,
		logger:   logging.OrNop(logger).With(zap.String("component", "dispatcher")),
	}
}

// MakeEmergencyCall requests a tel: call to number.
func (d *Dispatcher) MakeEmergencyCall(ctx context.Context, number string) ActionOutcome {
	dial := dialable(number)
	if dial == "" {
		return d.fail("call", "", "", fmt.Errorf("no dialable number in %q", number))
	}
	return d.run(ctx, "call", "tel:"+dial, number)
}

// SendCrisisText requests an sms: message to the text line with its keyword as body.
func (d *Dispatcher) SendCrisisText(ctx context.Context, line config.Resource) ActionOutcome {
	dial := dialable(line.Number)
	if dial == "" {
		return d.fail("text", "", "", fmt.Errorf("text line %q has no number", line.ID))
	}
	uri := "sms:" + dial
	if line.Keyword != "" {
		uri += "?body=" + url.QueryEscape(line.Keyword)
	}
	return d.run(ctx, "text", uri, line.Number)
}

// OpenURL requests an https: page. Other schemes are refused.
func (d *Dispatcher) OpenURL(ctx context.Context, raw string) ActionOutcome {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return d.fail("open", raw, "", fmt.Errorf("only https urls can be opened"))
	}
	return d.run(ctx, "open", u.String(), "")
}

func (d *Dispatcher) run(ctx context.Context, action, uri, fallback string) ActionOutcome {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("launcher panic: %v", r)
			}
		}()
		done <- d.launcher.Open(ctx, uri)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = fmt.Errorf("timed out after %s: %w", d.timeout, ctx.Err())
	}

	if err != nil {
		return d.fail(action, uri, fallback, err)
	}

	metrics.RecordAction(action, true)
	return ActionOutcome{Action: action, URI: uri, Delivered: true}
}

func (d *Dispatcher) fail(action, uri, fallback string, err error) ActionOutcome {
	derr := &apperrors.ActionDeliveryError{Action: action, Target: uri, FallbackNumber: fallback, Err: err}
	metrics.RecordAction(action, false)
	d.logger.Warn("action delivery failed", zap.String("action", action), zap.Error(err))
	return ActionOutcome{
		Action:         action,
		URI:            uri,
		Error:          derr.UserMessage(),
		FallbackNumber: fallback,
		Err:            derr,
	}
}

// dialable keeps digits and a leading plus sign.
func dialable(number string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(number) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if s := b.String(); s != "+" {
		return s
	}
	return ""
}
