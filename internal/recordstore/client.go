package recordstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"vidsync/internal/domain"
)

// Config holds record store client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the zone-scoped personal record store.
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
		logger:  logger.With("client", "recordstore"),
	}
}

// Available probes the store's status endpoint. Any failure is treated
// as unavailable; sync passes are skipped rather than started doomed.
func (c *Client) Available(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("availability probe failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

func (c *Client) ZoneExists(ctx context.Context, zone string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.zoneURL(zone), nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, domain.ErrZoneNotFound
	default:
		return false, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

func (c *Client) CreateZone(ctx context.Context, zone string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.zoneURL(zone), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// FetchChanges requests all changes since token. An empty token asks for
// a full zone fetch. The returned token is opaque and replayed verbatim
// on the next call.
func (c *Client) FetchChanges(ctx context.Context, zone, token string) (*domain.ChangeSet, error) {
	endpoint := c.zoneURL(zone) + "/changes"
	if token != "" {
		endpoint += "?token=" + url.QueryEscape(token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer httpResp.Body.Close()

	if err := checkStatus(httpResp.StatusCode); err != nil {
		return nil, err
	}

	var resp ChangesResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	changed := make([]domain.RemoteRecord, 0, len(resp.Changed))
	for _, rec := range resp.Changed {
		changed = append(changed, domain.RemoteRecord{ID: rec.ID, Fields: rec.Fields})
	}

	return &domain.ChangeSet{
		Changed:  changed,
		Deleted:  resp.Deleted,
		NewToken: resp.NewToken,
	}, nil
}

func (c *Client) UpsertBatch(ctx context.Context, zone, owner string, statuses []domain.WatchStatus) error {
	records := make([]Record, 0, len(statuses))
	for _, st := range statuses {
		records = append(records, Record{
			ID: st.VideoID,
			Fields: map[string]any{
				"state":         string(st.State),
				"position":      st.Position,
				"last_modified": st.LastModified.UTC().Format(time.RFC3339Nano),
			},
		})
	}

	body, err := json.Marshal(UpsertRequest{Owner: owner, Records: records})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.zoneURL(zone)+"/records", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp.StatusCode); err != nil {
		return err
	}

	c.logger.Debug("pushed record batch", "zone", zone, "count", len(records))
	return nil
}

func (c *Client) zoneURL(zone string) string {
	return c.baseURL + "/zones/" + url.PathEscape(zone)
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return domain.ErrZoneNotFound
	case code == http.StatusTooManyRequests:
		return domain.ErrThrottled
	default:
		return fmt.Errorf("unexpected status: %d", code)
	}
}
