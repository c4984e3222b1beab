// Package hiscores looks up tracked accounts on the OSRS hiscores API and
// normalizes the response into event.Snapshot form.
package hiscores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"clanbot/internal/event"
	logx "clanbot/pkg/logx"
)

// ErrNotFound means the player name is not on the hiscores.
var ErrNotFound = errors.New("hiscores: player not found")

// Client fetches a point-in-time snapshot for one account name.
type Client interface {
	Lookup(ctx context.Context, name string) (event.Snapshot, error)
}

const defaultBaseURL = "https://secure.runescape.com/m=hiscore_oldschool/index_lite.json"

type Config struct {
	BaseURL string
	Timeout time.Duration
	// RatePerSec bounds outbound lookups across all refresh cycles.
	RatePerSec int
}

// HTTPClient is the live hiscores client.
type HTTPClient struct {
	base    string
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *HTTPClient {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 4
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTPClient{
		base:    base,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}
}

// liteResponse mirrors the hiscores index_lite.json payload.
type liteResponse struct {
	Skills []struct {
		Name string `json:"name"`
		XP   int64  `json:"xp"`
	} `json:"skills"`
	Activities []struct {
		Name  string `json:"name"`
		Score int64  `json:"score"`
	} `json:"activities"`
}

func (c *HTTPClient) Lookup(ctx context.Context, name string) (event.Snapshot, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("hiscores: empty account name")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.base + "?player=" + url.QueryEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hiscores: lookup %q: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("hiscores: lookup %q: unexpected status %d", name, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("hiscores: read %q: %w", name, err)
	}
	var lite liteResponse
	if err := json.Unmarshal(body, &lite); err != nil {
		return nil, fmt.Errorf("hiscores: decode %q: %w", name, err)
	}
	return normalize(lite), nil
}
