package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lifeline-care/crisis/internal/shared/logging"
	"github.com/lifeline-care/crisis/internal/shared/metrics"
)

const (
	remotePath     = "/config/crisis-keywords"
	maxRemoteBytes = 1 << 20
)

// RemoteLoader fetches the crisis keyword override from {base}/config/crisis-keywords.
type RemoteLoader struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	group   singleflight.Group
}

// NewRemoteLoader creates a loader. An empty baseURL disables fetching.
func NewRemoteLoader(baseURL string, timeout time.Duration, logger *zap.Logger) *RemoteLoader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteLoader{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logging.OrNop(logger).With(zap.String("component", "remote_config")),
	}
}

// Load returns the remote override, or nil when the base URL is unset, the
// request fails, the server answers with a non-2xx status, or ctx is done
// first. It never returns an error; failures are logged and counted.
// Concurrent callers share one in-flight request, which runs detached from
// any single caller's cancellation and is bounded by the client timeout.
func (l *RemoteLoader) Load(ctx context.Context) *PartialConfig {
	if l == nil || l.baseURL == "" {
		metrics.RecordRemoteConfigFetch("skipped")
		return nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan(remotePath, func() (interface{}, error) {
		return l.fetch(fetchCtx)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		l.logger.Debug("remote crisis config fetch abandoned by caller", zap.Error(ctx.Err()))
		return nil
	}

	v, err := res.Val, res.Err
	if err != nil {
		metrics.RecordRemoteConfigFetch("failed")
		l.logger.Warn("remote crisis config unavailable, using local config", zap.Error(err))
		return nil
	}

	metrics.RecordRemoteConfigFetch("ok")
	return v.(*PartialConfig)
}

func (l *RemoteLoader) fetch(ctx context.Context) (*PartialConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+remotePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("remote config returned status %d", resp.StatusCode)
	}

	var partial PartialConfig
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRemoteBytes)).Decode(&partial); err != nil {
		return nil, fmt.Errorf("failed to decode remote config: %w", err)
	}
	return &partial, nil
}
