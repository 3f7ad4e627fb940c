package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lifeline-care/crisis/internal/shared/logging"
)

// Provider delivers feedback requests to a device channel
type Provider interface {
	Deliver(ctx context.Context, req *Request) error
}

// MockProvider records delivered requests for tests
type MockProvider struct {
	mu         sync.RWMutex
	delivered  []*Request
	failOnSend bool
	sendDelay  time.Duration
}

// NewMockProvider creates a new mock provider
func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

// Deliver records the request (mock implementation)
func (p *MockProvider) Deliver(ctx context.Context, req *Request) error {
	p.mu.RLock()
	delay, fail := p.sendDelay, p.failOnSend
	p.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if fail {
		return fmt.Errorf("mock deliver failure")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	copied := *req
	p.delivered = append(p.delivered, &copied)
	return nil
}

// SetFailOnSend sets whether Deliver should fail
func (p *MockProvider) SetFailOnSend(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failOnSend = fail
}

// SetSendDelay sets artificial delay for Deliver
func (p *MockProvider) SetSendDelay(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sendDelay = delay
}

// Delivered returns all delivered requests in order
func (p *MockProvider) Delivered() []*Request {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*Request, len(p.delivered))
	copy(result, p.delivered)
	return result
}

// LogProvider logs requests instead of delivering them (for development)
type LogProvider struct {
	logger *zap.Logger
}

// NewLogProvider creates a logging provider
func NewLogProvider(logger *zap.Logger) *LogProvider {
	return &LogProvider{logger: logging.OrNop(logger)}
}

// Deliver logs the request
func (p *LogProvider) Deliver(ctx context.Context, req *Request) error {
	p.logger.Info("feedback requested",
		zap.String("id", req.ID),
		zap.String("type", string(req.Type)),
		zap.String("style", string(req.Style)),
		zap.String("risk", req.RiskLevel),
	)
	return nil
}
