package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/EdsonSilvaCastro/trading-bot-three/internal/execution"
	"github.com/EdsonSilvaCastro/trading-bot-three/internal/risk"
)

const (
	positionKeyPrefix = "smc:position"
	stateTTL          = 7 * 24 * time.Hour
)

// ErrNoSnapshot is returned when Redis holds no state for the symbol.
var ErrNoSnapshot = errors.New("no snapshot stored")

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// BotSnapshot is the restart-survivable state: the live trade and risk
// counters as of the last save.
type BotSnapshot struct {
	Trade   *execution.Trade `json:"trade,omitempty"`
	Risk    risk.Snapshot    `json:"risk"`
	SavedAt time.Time        `json:"saved_at"`
}

// StateStore persists bot state to Redis with an in-memory fallback, so a
// Redis outage degrades persistence but never trading.
type StateStore struct {
	client *redis.Client
	logger zerolog.Logger

	mu       sync.RWMutex
	fallback map[string]BotSnapshot
}

func NewStateStore(cfg RedisConfig, logger zerolog.Logger) *StateStore {
	var client *redis.Client
	if cfg.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}
	return &StateStore{
		client:   client,
		logger:   logger.With().Str("component", "state_store").Logger(),
		fallback: make(map[string]BotSnapshot),
	}
}

func (s *StateStore) key(symbol string) string {
	return fmt.Sprintf("%s:%s", positionKeyPrefix, symbol)
}

// Save writes the snapshot. Redis failure falls back to memory.
func (s *StateStore) Save(ctx context.Context, symbol string, snap BotSnapshot) error {
	snap.SavedAt = time.Now().UTC()

	s.mu.Lock()
	s.fallback[symbol] = snap
	s.mu.Unlock()

	if s.client == nil {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key(symbol), payload, stateTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis save failed, memory fallback only")
		return err
	}
	return nil
}

// Load reads the snapshot, preferring Redis and falling back to memory.
func (s *StateStore) Load(ctx context.Context, symbol string) (BotSnapshot, error) {
	if s.client != nil {
		payload, err := s.client.Get(ctx, s.key(symbol)).Bytes()
		if err == nil {
			var snap BotSnapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				return BotSnapshot{}, fmt.Errorf("unmarshaling snapshot: %w", err)
			}
			return snap, nil
		}
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("redis load failed, trying memory fallback")
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if snap, ok := s.fallback[symbol]; ok {
		return snap, nil
	}
	return BotSnapshot{}, ErrNoSnapshot
}

// Clear removes the stored snapshot.
func (s *StateStore) Clear(ctx context.Context, symbol string) {
	s.mu.Lock()
	delete(s.fallback, symbol)
	s.mu.Unlock()

	if s.client != nil {
		if err := s.client.Del(ctx, s.key(symbol)).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("redis clear failed")
		}
	}
}

// Close releases the Redis connection.
func (s *StateStore) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
}
