package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSnowflake_CompareIsNumeric(t *testing.T) {
	tests := []struct {
		a, b     Snowflake
		expected int
	}{
		{"9", "10", -1},
		{"100", "99", 1},
		{"110", "110", 0},
		// beyond float64 precision: these two differ only in the last digit
		{"1152921504606846977", "1152921504606846976", 1},
		{"99999999999999999999998", DefaultEarliest, -1},
		{DefaultLatest, "2", -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.a)+"_"+string(tt.b), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.a.Compare(tt.b))
		})
	}
}

func TestSnowflake_Valid(t *testing.T) {
	assert.True(t, Snowflake("0").Valid())
	assert.True(t, Snowflake("1152921504606846977").Valid())
	assert.False(t, Snowflake("").Valid())
	assert.False(t, Snowflake("-5").Valid())
	assert.False(t, Snowflake("12a").Valid())
	assert.False(t, Snowflake("1.5").Valid())
}

func TestMinMaxSnowflake(t *testing.T) {
	assert.Equal(t, Snowflake("100"), MinSnowflake("100", "105"))
	assert.Equal(t, Snowflake("100"), MinSnowflake(DefaultEarliest, "100"))
	assert.Equal(t, Snowflake("110"), MaxSnowflake("105", "110"))
	assert.Equal(t, Snowflake("110"), MaxSnowflake(DefaultLatest, "110"))
}

func TestSnowflake_Time(t *testing.T) {
	// 175928847299117063 is the example from the Discord developer docs
	ts := Snowflake("175928847299117063").Time()
	assert.Equal(t, time.Date(2016, 4, 30, 11, 18, 25, 796000000, time.UTC), ts)
}
