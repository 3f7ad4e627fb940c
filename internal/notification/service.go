package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lifeline-care/crisis/internal/shared/logging"
	"github.com/lifeline-care/crisis/internal/shared/metrics"
	"github.com/lifeline-care/crisis/internal/shared/types"
)

// Service fans feedback requests out to per-channel providers on a small
// worker pool, so callers never wait on a device.
type Service struct {
	providers map[FeedbackType]Provider
	logger    *zap.Logger

	mu      sync.Mutex
	stats   Stats
	started bool

	reqCh  chan *Request
	stopCh chan struct{}
	wg     sync.WaitGroup

	config ServiceConfig
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Workers        int
	BufferSize     int
	DeliverTimeout time.Duration
}

// DefaultServiceConfig returns default configuration
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Workers:        2,
		BufferSize:     256,
		DeliverTimeout: 2 * time.Second,
	}
}

// NewService creates a new feedback service
func NewService(haptic, notifier Provider, config ServiceConfig, logger *zap.Logger) *Service {
	providers := make(map[FeedbackType]Provider, 2)
	if haptic != nil {
		providers[FeedbackHaptic] = haptic
	}
	if notifier != nil {
		providers[FeedbackNotification] = notifier
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.DeliverTimeout <= 0 {
		config.DeliverTimeout = DefaultServiceConfig().DeliverTimeout
	}
	return &Service{
		providers: providers,
		logger:    logging.OrNop(logger).With(zap.String("component", "feedback")),
		reqCh:     make(chan *Request, config.BufferSize),
		stopCh:    make(chan struct{}),
		config:    config,
	}
}

// Start starts the workers
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("service already started")
	}
	s.started = true
	s.mu.Unlock()

	for i := 0; i < s.config.Workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	return nil
}

// Stop drains queued requests and stops the workers
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("service not started")
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	return nil
}

// Warn requests the "Warning" haptic plus a local notification for a
// high-risk analysis.
func (s *Service) Warn(ctx context.Context, riskLevel string) error {
	var firstErr error
	for _, req := range []*Request{
		{Type: FeedbackHaptic, Style: StyleWarning, RiskLevel: riskLevel},
		{Type: FeedbackNotification, Style: StyleWarning, RiskLevel: riskLevel,
			Title: "You're not alone", Body: "Support is available right now."},
	} {
		if err := s.Request(ctx, req); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Request queues a feedback request. It never blocks: when the buffer is full
// the request is dropped and an error returned.
func (s *Service) Request(ctx context.Context, req *Request) error {
	if req.ID == "" {
		req.ID = types.NewID().String()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.Status = StatusPending
	metrics.RecordFeedbackRequest(string(req.Type))

	select {
	case s.reqCh <- req:
		return nil
	default:
		s.mu.Lock()
		s.stats.Dropped++
		s.mu.Unlock()
		return fmt.Errorf("feedback buffer full")
	}
}

// Stats returns a snapshot of the delivery counters
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			// deliver what is already queued
			for {
				select {
				case req := <-s.reqCh:
					s.process(ctx, req)
				default:
					return
				}
			}
		case req := <-s.reqCh:
			s.process(ctx, req)
		}
	}
}

func (s *Service) process(ctx context.Context, req *Request) {
	provider, ok := s.providers[req.Type]
	if !ok {
		s.finish(req, fmt.Errorf("no provider for %s", req.Type))
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, s.config.DeliverTimeout)
	defer cancel()
	s.finish(req, provider.Deliver(deliverCtx, req))
}

func (s *Service) finish(req *Request, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		req.Status = StatusFailed
		req.Error = err.Error()
		s.stats.Failed++
		s.logger.Warn("feedback delivery failed",
			zap.String("id", req.ID),
			zap.String("type", string(req.Type)),
			zap.Error(err),
		)
		return
	}

	now := time.Now().UTC()
	req.Status = StatusDelivered
	req.DeliveredAt = &now
	s.stats.Delivered++
}
