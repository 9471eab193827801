// Package session はセッションの保存・認証処理とセッションプロバイダーを提供します。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
)

// ErrNotFound はセッションが存在しない場合のエラーです。
var ErrNotFound = errors.New("session not found")

// Record はサーバー側で保持するセッションの状態です。
type Record struct {
	ID         string    `json:"id"`
	User       string    `json:"user"`
	CSRFToken  string    `json:"csrfToken"`
	IssuedAt   time.Time `json:"issuedAt"`
	LastActive time.Time `json:"lastActive"`
}

// Store はセッション状態を Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。ttl はセッションの最大有効期間です。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Create は新しいセッションを発行します。
func (s *Store) Create(ctx context.Context, user, csrfToken string) (*Record, error) {
	if user == "" {
		return nil, fmt.Errorf("user is required")
	}
	now := time.Now().UTC()
	record := &Record{
		ID:         uuid.NewString(),
		User:       user,
		CSRFToken:  csrfToken,
		IssuedAt:   now,
		LastActive: now,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, sessionKey(record.ID), payload, s.ttl).Err(); err != nil {
		return nil, err
	}
	return record, nil
}

// Get はセッションを取得します。存在しない場合は nil, nil を返します。
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	if id == "" {
		return nil, fmt.Errorf("session id is required")
	}
	data, err := s.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Touch は最終操作時刻を更新します。TTL は発行時からの残り時間を維持します。
// 同じセッションへの同時更新で競合した場合はやり直します。
func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	key := sessionKey(id)
	at = at.UTC()
	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if err == redis.Nil {
				return fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		// 既により新しい時刻で更新済みなら書き込まない
		if !at.After(record.LastActive) {
			return nil
		}
		record.LastActive = at
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		return err
	}

	for {
		err := s.rdb.Watch(ctx, update, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
}

// Delete はセッションを削除します。存在しなくてもエラーにしません。
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.rdb.Del(ctx, sessionKey(id)).Err()
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}
