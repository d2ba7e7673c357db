package ratelimit

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/logger"
)

// RequestFunc is a function that performs the actual API request
type RequestFunc func(ctx context.Context) (interface{}, error)

// requestResult wraps the result and error of a request
type requestResult struct {
	value interface{}
	err   error
}

// Proxy defines the interface for the rate-limiting proxy
type Proxy interface {
	// Request submits a rate-limited request for execution
	Request(ctx context.Context, providerName string, fn RequestFunc) (interface{}, error)

	// Close gracefully shuts down the proxy
	Close() error
}

// proxy is the concrete implementation of the rate-limiting proxy
type proxy struct {
	pool      pond.ResultPool[*requestResult]
	limiters  map[string]*providerLimiter
	closed    atomic.Bool
	closeOnce sync.Once
}

// providerLimiter holds the rate limiting state for a single provider
type providerLimiter struct {
	name    string
	config  config.RateLimitConfig
	limiter *rate.Limiter
}

// NewProxy creates a new rate-limiting proxy
func NewProxy(cfg config.RateLimiterConfig) (Proxy, error) {
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	limiters := make(map[string]*providerLimiter)
	for name, providerConfig := range cfg.Providers {
		limiters[name] = &providerLimiter{
			name:    name,
			config:  providerConfig,
			limiter: rate.NewLimiter(rate.Limit(providerConfig.RequestsPerSecond), providerConfig.Burst),
		}
	}

	pool := pond.NewResultPool[*requestResult](
		cfg.MaxWorkers,
		pond.WithQueueSize(cfg.MaxQueueSize),
	)

	p := &proxy{
		pool:     pool,
		limiters: limiters,
	}

	logger.Info("Rate limit proxy initialized",
		zap.Int("max_workers", cfg.MaxWorkers),
		zap.Int("max_queue_size", cfg.MaxQueueSize),
		zap.Int("providers", len(cfg.Providers)),
	)

	return p, nil
}

// Request submits a rate-limited request for execution and returns the result with type safety
func Request[T any](ctx context.Context, p Proxy, providerName string, fn func(ctx context.Context) (T, error)) (T, error) {
	// If proxy is nil, execute the function directly
	if p == nil {
		return fn(ctx)
	}

	var zero T
	result, err := p.Request(ctx, providerName, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// Request submits a rate-limited request for execution.
// The function blocks until a token is acquired and the request completes,
// the context is canceled, or the maximum queue time is exceeded.
func (p *proxy) Request(ctx context.Context, providerName string, fn RequestFunc) (interface{}, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("proxy is closed")
	}

	limiter, ok := p.limiters[providerName]
	if !ok {
		return nil, fmt.Errorf("provider '%s' not configured", providerName)
	}

	queueCtx, cancel := context.WithTimeout(ctx, limiter.config.MaxQueueTime)
	defer cancel()

	resultTask := p.pool.Submit(func() *requestResult {
		if err := limiter.limiter.Wait(queueCtx); err != nil {
			return &requestResult{err: err}
		}
		value, err := fn(queueCtx)
		return &requestResult{value: value, err: err}
	})

	result, err := resultTask.Wait()
	if err != nil {
		return nil, err
	}
	if result.err != nil {
		return nil, result.err
	}
	return result.value, nil
}

// Close gracefully shuts down the proxy.
// It waits for in-flight requests to complete.
func (p *proxy) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		tasks := p.pool.Stop()
		if errTasks := tasks.Wait(); errTasks != nil {
			logger.Warn("Error waiting for pool tasks to complete", zap.Error(errTasks))
			err = errTasks
		}
	})
	return err
}

// validateConfig validates and sets defaults for the configuration
func validateConfig(cfg *config.RateLimiterConfig) error {
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}

	for name, provider := range cfg.Providers {
		if provider.RequestsPerSecond <= 0 {
			return fmt.Errorf("provider %s: requests_per_second must be positive", name)
		}

		if provider.Burst <= 0 {
			provider.Burst = provider.RequestsPerSecond
		}

		if provider.MaxQueueTime <= 0 {
			provider.MaxQueueTime = time.Minute
		}

		cfg.Providers[name] = provider
	}

	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU() * 4
	}

	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 1000
	}

	return nil
}
