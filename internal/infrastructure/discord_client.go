package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samber/mo"
	"go.uber.org/zap"

	"github.com/yourusername/embed-archiver/internal/domain"
)

const (
	minTokenLength   = 30
	maxErrorBodySize = 4 << 10
	maxPageBodySize  = 16 << 20
)

// DiscordClient reads channel history from the Discord REST API.
// It reports rate limit headers instead of hiding them behind its own limiter,
// so the traversal engine can decide how to pace itself.
type DiscordClient struct {
	httpClient *http.Client
	apiBase    string
	token      string
	userAgent  string
	logger     *zap.Logger
}

// NewDiscordClient creates a new Discord REST client
func NewDiscordClient(config *domain.DiscordConfig, httpClient *http.Client, logger *zap.Logger) (*DiscordClient, error) {
	if len(config.Token) < minTokenLength {
		return nil, fmt.Errorf("discord token has incorrect length")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscordClient{
		httpClient: httpClient,
		apiBase:    strings.TrimRight(config.APIBase, "/"),
		token:      config.Token,
		userAgent:  config.UserAgent,
		logger:     logger,
	}, nil
}

// ListMessages fetches one page of a channel's messages. Transport failures are
// returned as errors; every HTTP response, successful or not, becomes a page.
func (c *DiscordClient) ListMessages(ctx context.Context, channelID string, query domain.MessageQuery) (*domain.MessagePage, error) {
	endpoint := fmt.Sprintf("%s/channels/%s/messages?%s", c.apiBase, url.PathEscape(channelID), encodeMessageQuery(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages for channel %s: %w", channelID, err)
	}
	defer resp.Body.Close()

	page := &domain.MessagePage{
		Status:    resp.StatusCode,
		RateLimit: ParseRateLimit(resp.Header),
	}

	c.logger.Debug("Listed channel messages",
		zap.String("channel_id", channelID),
		zap.Int("status", resp.StatusCode),
		zap.Int("remaining", page.RateLimit.Remaining),
		zap.Duration("reset_after", page.RateLimit.ResetAfter))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		page.Result = mo.Err[[]domain.Message](&domain.APIError{Status: resp.StatusCode, Body: string(body)})
		return page, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read messages for channel %s: %w", channelID, err)
	}
	page.Result = decodeMessages(resp.StatusCode, body)
	return page, nil
}

// decodeMessages accepts only a JSON array of messages with numeric ids
func decodeMessages(status int, body []byte) mo.Result[[]domain.Message] {
	var messages []domain.Message
	// a JSON null decodes without error but leaves the slice nil
	if err := json.Unmarshal(body, &messages); err != nil || messages == nil {
		return mo.Err[[]domain.Message](&domain.APIError{Status: status, Body: truncate(string(body), maxErrorBodySize)})
	}
	for _, m := range messages {
		if !m.ID.Valid() {
			return mo.Err[[]domain.Message](&domain.APIError{
				Status: status,
				Body:   fmt.Sprintf("message with invalid id %q", m.ID),
			})
		}
	}
	return mo.Ok(messages)
}

func encodeMessageQuery(q domain.MessageQuery) string {
	values := url.Values{}
	values.Set("limit", strconv.Itoa(q.Limit))
	if q.After != "" {
		values.Set("after", string(q.After))
	}
	if q.Before != "" {
		values.Set("before", string(q.Before))
	}
	if q.Around != "" {
		values.Set("around", string(q.Around))
	}
	return values.Encode()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
