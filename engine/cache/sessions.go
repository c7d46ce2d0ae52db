package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/david1005910/Bio2/engine/domain"
)

const (
	sessionPrefix = "rag:session:"

	// DefaultMaxTurns caps a session's retained history.
	DefaultMaxTurns = 10

	// DefaultSessionTTL expires idle conversations.
	DefaultSessionTTL = 24 * time.Hour
)

// SessionStore keeps ordered conversation histories in Redis lists, trimmed
// to the newest MaxTurns entries.
type SessionStore struct {
	rdb      *redis.Client
	maxTurns int
	ttl      time.Duration
}

// NewSessionStore creates a session store with defaults applied.
func NewSessionStore(rdb *redis.Client, maxTurns int, ttl time.Duration) *SessionStore {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{rdb: rdb, maxTurns: maxTurns, ttl: ttl}
}

// Append adds turns to the end of a session's history, trims to the cap, and
// refreshes the idle TTL.
func (s *SessionStore) Append(ctx context.Context, sessionID string, turns ...domain.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	key := sessionPrefix + sessionID
	vals := make([]any, len(turns))
	for i, t := range turns {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("cache: encode turn: %w", err)
		}
		vals[i] = raw
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, key, vals...)
	pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: append session %s: %w", sessionID, err)
	}
	return nil
}

// History returns a session's turns oldest first. An unknown session yields
// an empty history, not an error.
func (s *SessionStore) History(ctx context.Context, sessionID string) ([]domain.Turn, error) {
	raws, err := s.rdb.LRange(ctx, sessionPrefix+sessionID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: history %s: %w", sessionID, err)
	}
	turns := make([]domain.Turn, 0, len(raws))
	for _, raw := range raws {
		var t domain.Turn
		if err := json.Unmarshal([]byte(raw), &t); err != nil {
			return nil, fmt.Errorf("cache: decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Clear deletes a session's history.
func (s *SessionStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, sessionPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("cache: clear session %s: %w", sessionID, err)
	}
	return nil
}
