package domain

import (
	"math/big"
	"time"
)

// Snowflake is an upstream identifier: an unsigned integer of arbitrary size
// encoded as a decimal string. Ordering is numeric, never lexicographic.
type Snowflake string

const (
	// DefaultEarliest sorts after every real message id
	DefaultEarliest Snowflake = "99999999999999999999999"
	// DefaultLatest sorts before every real message id
	DefaultLatest Snowflake = "1"

	discordEpochMillis = 1420070400000
)

// Int returns the identifier as a big integer.
// ok is false when the string is not a non-negative decimal integer.
func (s Snowflake) Int() (n *big.Int, ok bool) {
	n, ok = new(big.Int).SetString(string(s), 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}

// Valid reports whether s is a non-negative decimal integer
func (s Snowflake) Valid() bool {
	_, ok := s.Int()
	return ok
}

// Compare returns -1, 0 or +1 depending on whether s is numerically less than,
// equal to, or greater than other. Invalid identifiers compare as zero.
func (s Snowflake) Compare(other Snowflake) int {
	return s.bigOrZero().Cmp(other.bigOrZero())
}

// Less reports whether s < other numerically
func (s Snowflake) Less(other Snowflake) bool {
	return s.Compare(other) < 0
}

// Time returns the creation time encoded in a Discord snowflake
func (s Snowflake) Time() time.Time {
	n := s.bigOrZero()
	ms := new(big.Int).Rsh(n, 22)
	if !ms.IsInt64() {
		return time.Time{}
	}
	return time.UnixMilli(ms.Int64() + discordEpochMillis).UTC()
}

func (s Snowflake) String() string {
	return string(s)
}

func (s Snowflake) bigOrZero() *big.Int {
	if n, ok := s.Int(); ok {
		return n
	}
	return new(big.Int)
}

// MinSnowflake returns the numerically smaller identifier
func MinSnowflake(a, b Snowflake) Snowflake {
	if b.Less(a) {
		return b
	}
	return a
}

// MaxSnowflake returns the numerically larger identifier
func MaxSnowflake(a, b Snowflake) Snowflake {
	if a.Less(b) {
		return b
	}
	return a
}
