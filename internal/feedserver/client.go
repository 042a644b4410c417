package feedserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"vidsync/internal/domain"
)

// Config holds feed server client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the feed aggregation server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		logger:  logger.With("client", "feedserver"),
	}
}

func (c *Client) Health(ctx context.Context) (*domain.FeedHealth, error) {
	var resp HealthResponse
	if err := c.get(ctx, c.baseURL+"/health", &resp); err != nil {
		return nil, err
	}
	return &domain.FeedHealth{
		ChannelCount: resp.ChannelCount,
		VideoCount:   resp.VideoCount,
	}, nil
}

func (c *Client) Subscriptions(ctx context.Context, cred domain.Credential) ([]domain.Channel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/subscriptions", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", httpResp.StatusCode)
	}

	var resp SubscriptionsResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	channels := make([]domain.Channel, 0, len(resp.Channels))
	for _, ch := range resp.Channels {
		channels = append(channels, domain.Channel{
			ID:           ch.ID,
			Name:         ch.Name,
			ThumbnailURL: ch.ThumbnailURL,
			Description:  ch.Description,
			UploadsID:    ch.UploadsID,
			LastModified: time.Now(),
			Synced:       true,
		})
	}
	return channels, nil
}

func (c *Client) RegisterChannels(ctx context.Context, userID string, channelIDs []string) error {
	body, err := json.Marshal(RegisterRequest{ChannelIDs: channelIDs})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/users/%s/channels", c.baseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// FetchPage requests one page of video deltas. A nil since requests the
// full feed; an empty cursor requests the first page.
func (c *Client) FetchPage(ctx context.Context, userID string, since *time.Time, cursor string, limit int) (*domain.FeedPage, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	if since != nil {
		params.Set("since", since.UTC().Format(time.RFC3339))
	}
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	endpoint := fmt.Sprintf("%s/users/%s/feed?%s", c.baseURL, url.PathEscape(userID), params.Encode())

	var resp FeedPageResponse
	if err := c.get(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	return &domain.FeedPage{
		Videos:     c.transform(resp.Videos),
		NextCursor: resp.NextCursor,
	}, nil
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrUserNotFound
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) transform(deltas []VideoDelta) []domain.Video {
	videos := make([]domain.Video, 0, len(deltas))

	for _, d := range deltas {
		publishedAt, err := time.Parse(time.RFC3339, d.PublishedAt)
		if err != nil {
			c.logger.Warn("failed to parse publish date",
				"video_id", d.ID,
				"published_at", d.PublishedAt,
			)
			continue
		}

		videos = append(videos, domain.Video{
			ID:           d.ID,
			ChannelID:    d.ChannelID,
			Title:        d.Title,
			Description:  d.Description,
			ThumbnailURL: d.ThumbnailURL,
			Duration:     d.Duration,
			PublishedAt:  publishedAt,
			LastModified: time.UnixMilli(d.LastModified),
			Synced:       true,
		})
	}

	return videos
}
