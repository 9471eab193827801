package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	eventsKey = "audit:events"

	defaultMaxEvents = 1000
)

// Store は監査イベントを Redis のリストに新しい順で保存します。
type Store struct {
	rdb       *redis.Client
	maxEvents int64
}

// NewStore は Store を作成します。maxEvents が0以下なら既定値を使います。
func NewStore(rdb *redis.Client, maxEvents int) *Store {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &Store{
		rdb:       rdb,
		maxEvents: int64(maxEvents),
	}
}

// Append はイベントを先頭に追加し、上限を超えた古いイベントを捨てます。
func (s *Store) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, eventsKey, payload)
	pipe.LTrim(ctx, eventsKey, 0, s.maxEvents-1)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent は新しい順に最大 n 件のイベントを返します。
func (s *Store) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := s.rdb.LRange(ctx, eventsKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(items))
	for _, item := range items {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("decode audit event: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}
