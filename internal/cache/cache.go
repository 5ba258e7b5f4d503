// Package cache provides a Redis-backed shared tier for market assessments
// with graceful degradation when Redis is unavailable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"futures-trading-engine/config"
	"futures-trading-engine/internal/regime"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Service wraps a Redis client with a small circuit breaker. When Redis is
// down, Get misses and Set becomes a no-op so callers fall back to computing
// assessments locally.
type Service struct {
	client       *redis.Client
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration

	log zerolog.Logger
}

const assessmentKeyFormat = "assessment:%s:%s"

// NewService creates a Service with the provided configuration. A failed
// initial connection returns the service in degraded mode, not an error.
func NewService(cfg config.RedisConfig, logger zerolog.Logger) (*Service, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	s := &Service{
		client:        client,
		maxFailures:   3,
		checkInterval: 30 * time.Second,
		log:           logger.With().Str("component", "cache").Logger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		s.log.Warn().Err(err).Msg("initial redis connection failed, running degraded")
		return s, nil
	}

	s.healthy = true
	s.lastCheck = time.Now()
	s.log.Info().Str("address", cfg.Address).Msg("redis connected")

	return s, nil
}

// IsHealthy returns whether Redis is currently available.
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failureCount++
	if s.failureCount >= s.maxFailures {
		if s.healthy {
			s.log.Warn().Int("failures", s.failureCount).Msg("redis marked unhealthy")
		}
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.healthy && s.failureCount > 0 {
		s.log.Info().Msg("redis recovered")
	}
	s.failureCount = 0
	s.healthy = true
	s.lastCheck = time.Now()
}

// maybeProbe retries the connection after checkInterval while unhealthy.
func (s *Service) maybeProbe(ctx context.Context) bool {
	s.mu.RLock()
	healthy := s.healthy
	due := time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()

	if healthy {
		return true
	}
	if !due {
		return false
	}

	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return false
	}
	s.recordSuccess()
	return true
}

// GetAssessment retrieves a cached assessment for symbol/timeframe.
func (s *Service) GetAssessment(ctx context.Context, symbol, timeframe string) (*regime.Assessment, bool) {
	if !s.maybeProbe(ctx) {
		return nil, false
	}

	key := fmt.Sprintf(assessmentKeyFormat, symbol, timeframe)
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.recordFailure()
		}
		return nil, false
	}
	s.recordSuccess()

	var a regime.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("dropping unreadable cached assessment")
		s.client.Del(ctx, key)
		return nil, false
	}
	return &a, true
}

// SetAssessment stores an assessment with the given TTL. Failures are logged
// and otherwise ignored.
func (s *Service) SetAssessment(ctx context.Context, a *regime.Assessment, ttl time.Duration) {
	if !s.maybeProbe(ctx) {
		return
	}

	data, err := json.Marshal(a)
	if err != nil {
		s.log.Warn().Err(err).Msg("marshaling assessment for cache")
		return
	}

	key := fmt.Sprintf(assessmentKeyFormat, a.Symbol, a.Timeframe)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		s.recordFailure()
		return
	}
	s.recordSuccess()
}

// InvalidateAssessment removes a cached assessment.
func (s *Service) InvalidateAssessment(ctx context.Context, symbol, timeframe string) {
	if !s.maybeProbe(ctx) {
		return
	}
	key := fmt.Sprintf(assessmentKeyFormat, symbol, timeframe)
	s.client.Del(ctx, key)
}

// Close shuts down the Redis client.
func (s *Service) Close() error {
	return s.client.Close()
}

var _ regime.SharedCache = (*Service)(nil)
