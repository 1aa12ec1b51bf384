package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"promptfinder/internal/models"
)

const (
	sessionKeyPrefix = "upload:session:"
	sessionExpiryKey = "upload:session:expiries"
	// sessions outlive their deadline so the sweeper can still find the object key
	sessionRetention = time.Hour
)

// SessionStore keeps one upload session per user in Redis, plus a sorted set of
// deadlines used by the sweeper.
type SessionStore struct {
	client *redis.Client
}

func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

func sessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

// Start records session, replacing any previous one for the same user.
func (s *SessionStore) Start(ctx context.Context, session models.UploadSession) error {
	return s.save(ctx, session)
}

func (s *SessionStore) save(ctx context.Context, session models.UploadSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	ttl := time.Until(session.ExpiresAt) + sessionRetention
	if ttl <= 0 {
		ttl = sessionRetention
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.UserID), raw, ttl)
		pipe.ZAdd(ctx, sessionExpiryKey, redis.Z{
			Score:  float64(session.ExpiresAt.Unix()),
			Member: session.UserID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("save upload session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, userID string) (models.UploadSession, error) {
	raw, err := s.client.Get(ctx, sessionKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.UploadSession{}, ErrSessionNotFound
		}
		return models.UploadSession{}, fmt.Errorf("get upload session: %w", err)
	}
	var session models.UploadSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return models.UploadSession{}, fmt.Errorf("decode upload session: %w", err)
	}
	return session, nil
}

// Delete removes the session. Deleting a missing session is not an error.
func (s *SessionStore) Delete(ctx context.Context, userID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sessionKey(userID))
		pipe.ZRem(ctx, sessionExpiryKey, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete upload session: %w", err)
	}
	return nil
}

// Extend pushes the deadline to now+window. A session can be extended once.
func (s *SessionStore) Extend(ctx context.Context, userID string, window time.Duration, now time.Time) (models.UploadSession, error) {
	session, err := s.Get(ctx, userID)
	if err != nil {
		return models.UploadSession{}, err
	}
	if session.Expired(now) {
		return models.UploadSession{}, ErrSessionExpired
	}
	if session.Extended {
		return models.UploadSession{}, ErrAlreadyExtended
	}
	session.Extended = true
	session.ExpiresAt = now.Add(window)
	if err := s.save(ctx, session); err != nil {
		return models.UploadSession{}, err
	}
	return session, nil
}

// Expired lists up to limit sessions whose deadline is at or before now.
func (s *SessionStore) Expired(ctx context.Context, now time.Time, limit int64) ([]models.UploadSession, error) {
	users, err := s.client.ZRangeByScore(ctx, sessionExpiryKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}

	sessions := make([]models.UploadSession, 0, len(users))
	for _, userID := range users {
		session, err := s.Get(ctx, userID)
		if errors.Is(err, ErrSessionNotFound) {
			// record already gone; drop the dangling index entry
			s.client.ZRem(ctx, sessionExpiryKey, userID)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !session.Expired(now) {
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}
