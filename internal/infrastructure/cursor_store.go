package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/mo"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// KVCursorStore stores channel cursors as JSON documents keyed by channel id
type KVCursorStore struct {
	kv domain.KVStore
}

// NewKVCursorStore creates a cursor store over a key-value store
func NewKVCursorStore(kv domain.KVStore) *KVCursorStore {
	return &KVCursorStore{kv: kv}
}

// Get returns the channel's cursor, None when the channel was never traversed
func (s *KVCursorStore) Get(ctx context.Context, channelID string) (mo.Option[*domain.ChannelCursorState], error) {
	value, err := s.kv.Get(ctx, channelID)
	if err != nil {
		return mo.None[*domain.ChannelCursorState](), err
	}
	data, ok := value.Get()
	if !ok {
		return mo.None[*domain.ChannelCursorState](), nil
	}

	var state domain.ChannelCursorState
	if err := json.Unmarshal(data, &state); err != nil {
		return mo.None[*domain.ChannelCursorState](), fmt.Errorf("failed to decode cursor of channel %s: %w", channelID, err)
	}
	if state.ChannelID == "" {
		state.ChannelID = channelID
	}
	return mo.Some(&state), nil
}

// Put writes the cursor
func (s *KVCursorStore) Put(ctx context.Context, state *domain.ChannelCursorState) error {
	if state.ChannelID == "" {
		return fmt.Errorf("cursor without channel id")
	}
	stored := state.Clone()
	stored.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode cursor: %w", err)
	}
	return s.kv.Put(ctx, state.ChannelID, data)
}
