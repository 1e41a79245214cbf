package infrastructure

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/yourusername/embed-archiver/internal/domain"
)

// Rate limit response headers sent by the upstream API
const (
	HeaderRateLimitLimit      = "X-RateLimit-Limit"
	HeaderRateLimitRemaining  = "X-RateLimit-Remaining"
	HeaderRateLimitResetAfter = "X-RateLimit-Reset-After"
	HeaderRateLimitBucket     = "X-RateLimit-Bucket"
	HeaderRetryAfter          = "Retry-After"
)

// ParseRateLimit reads the quota headers of a response. Missing or malformed
// values become zero, which callers treat as an exhausted quota.
func ParseRateLimit(header http.Header) domain.RateLimit {
	rl := domain.RateLimit{
		Limit:      parseCount(header.Get(HeaderRateLimitLimit)),
		Remaining:  parseCount(header.Get(HeaderRateLimitRemaining)),
		ResetAfter: parseSeconds(header.Get(HeaderRateLimitResetAfter)),
		Bucket:     strings.TrimSpace(header.Get(HeaderRateLimitBucket)),
	}
	if rl.ResetAfter == 0 {
		rl.ResetAfter = parseSeconds(header.Get(HeaderRetryAfter))
	}
	return rl
}

func parseCount(v string) int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// parseSeconds parses fractional seconds such as "1.234"
func parseSeconds(v string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0
	}
	// an hour is far beyond anything the upstream sends
	if f > 3600 {
		f = 3600
	}
	return time.Duration(math.Round(f * float64(time.Second)))
}
