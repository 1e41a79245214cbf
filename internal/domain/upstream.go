package domain

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/samber/mo"
)

// ErrNotFound is returned when a looked-up entity does not exist
var ErrNotFound = errors.New("not found")

// RateLimit is the quota information carried by an upstream response.
// Zero values mean the header was missing or unparseable.
type RateLimit struct {
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAfter time.Duration `json:"reset_after"`
	Bucket     string        `json:"bucket,omitempty"`
}

// Exhausted reports whether fewer than threshold requests remain
func (r RateLimit) Exhausted(threshold int) bool {
	return r.Remaining < threshold
}

// MessageQuery selects a page of channel history
type MessageQuery struct {
	After  Snowflake
	Before Snowflake
	Around Snowflake
	Limit  int
}

// APIError is a non-successful or undecodable upstream response
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream API error: status %d: %s", e.Status, e.Body)
}

// RateLimited reports whether the upstream rejected the call for throttling
func (e *APIError) RateLimited() bool {
	return e.Status == http.StatusTooManyRequests
}

// MessagePage is one upstream message-list response. Result holds either the
// decoded messages or the *APIError describing why there are none.
type MessagePage struct {
	Status    int
	RateLimit RateLimit
	Result    mo.Result[[]Message]
}

// RateLimited reports an explicit throttling rejection
func (p *MessagePage) RateLimited() bool {
	return p.Status == http.StatusTooManyRequests
}

// FetchResult is a successful media download
type FetchResult struct {
	URL        string
	UsedBackup bool
	Body       []byte
	Header     http.Header
}

// FetchAttempt describes one failed download attempt
type FetchAttempt struct {
	URL    string
	Status int // 0 when no response was received
	Body   string
}

func (a FetchAttempt) String() string {
	if a.Status == 0 {
		return fmt.Sprintf("%s: %s", a.URL, a.Body)
	}
	return fmt.Sprintf("%s: %d %s: %s", a.URL, a.Status, http.StatusText(a.Status), a.Body)
}

// FetchError is returned when both the primary and the backup URL failed
type FetchError struct {
	Primary FetchAttempt
	Backup  FetchAttempt
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("media download failed (primary status %d, backup status %d)",
		e.Primary.Status, e.Backup.Status)
}

// Detail returns both responses for diagnostics
func (e *FetchError) Detail() string {
	return "primary " + e.Primary.String() + "; backup " + e.Backup.String()
}
