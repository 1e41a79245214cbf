package domain

import (
	"fmt"
	"time"
)

// Direction is the way a traversal walks a channel's history
type Direction string

const (
	DirectionCatchUp  Direction = "catch_up" // forward, after the newest seen message
	DirectionBackfill Direction = "backfill" // backward, before the oldest seen message
)

// ValidateDirection checks if a direction is valid
func ValidateDirection(direction Direction) bool {
	return direction == DirectionCatchUp || direction == DirectionBackfill
}

// ParseDirection parses a direction name, accepting a few spellings
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "catch_up", "catchup", "catch-up", "forward":
		return DirectionCatchUp, nil
	case "backfill", "backward":
		return DirectionBackfill, nil
	default:
		return "", fmt.Errorf("invalid direction: %q", s)
	}
}

// ChannelCursorState bookmarks how far a channel has been traversed.
// Once initialized, earliest <= every archived id of the channel <= latest.
type ChannelCursorState struct {
	ChannelID       string    `json:"channel_id"`
	EarliestArchive Snowflake `json:"earliest_archive"`
	LatestArchive   Snowflake `json:"latest_archive"`
	BackfillDone    bool      `json:"backfill_done"`
	UpdatedAt       time.Time `json:"updated_at,omitempty"`
}

// NewChannelCursorState creates a cursor that covers no messages yet
func NewChannelCursorState(channelID string) *ChannelCursorState {
	return &ChannelCursorState{
		ChannelID:       channelID,
		EarliestArchive: DefaultEarliest,
		LatestArchive:   DefaultLatest,
	}
}

// Earliest returns the earliest bound, defaulting when unset
func (c *ChannelCursorState) Earliest() Snowflake {
	if c.EarliestArchive == "" {
		return DefaultEarliest
	}
	return c.EarliestArchive
}

// Latest returns the latest bound, defaulting when unset
func (c *ChannelCursorState) Latest() Snowflake {
	if c.LatestArchive == "" {
		return DefaultLatest
	}
	return c.LatestArchive
}

// Widen extends both bounds to cover id
func (c *ChannelCursorState) Widen(id Snowflake) {
	c.EarliestArchive = MinSnowflake(c.Earliest(), id)
	c.LatestArchive = MaxSnowflake(c.Latest(), id)
}

// Advance moves the bound that belongs to direction: the earliest bound only
// ever decreases during backfill and the latest only ever increases during catch-up.
func (c *ChannelCursorState) Advance(direction Direction, id Snowflake) {
	if direction == DirectionBackfill {
		c.EarliestArchive = MinSnowflake(c.Earliest(), id)
		return
	}
	c.LatestArchive = MaxSnowflake(c.Latest(), id)
}

// MarkBackfillDone records that backfill reached the start of the channel.
// There is no way to unset it.
func (c *ChannelCursorState) MarkBackfillDone() {
	c.BackfillDone = true
}

// Clone returns a copy safe to mutate
func (c *ChannelCursorState) Clone() *ChannelCursorState {
	clone := *c
	return &clone
}
