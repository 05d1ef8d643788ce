// Package updates periodically checks a release feed for new bridge
// versions and records what it finds so operators can tell which fleet
// members are behind.
package updates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/bridgefleet/bridgefleet/pkg/storage"
	"github.com/grafana/dskit/services"
)

const latestKey = "latest"

// Release is one entry from the release feed.
type Release struct {
	Version     string    `json:"version"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
	CheckedAt   time.Time `json:"checkedAt"`
}

type UpdateService struct {
	logger *slog.Logger

	feedURL  string
	hc       *http.Client
	interval time.Duration

	releaseStore storage.KeyValue[*Release]

	services.Service
}

func NewUpdateService(logger *slog.Logger, feedURL string, interval time.Duration, releaseStore storage.KeyValue[*Release]) *UpdateService {
	u := &UpdateService{
		logger:       logger,
		feedURL:      feedURL,
		hc:           &http.Client{Timeout: 30 * time.Second},
		interval:     interval,
		releaseStore: releaseStore,
	}
	u.Service = services.NewTimerService(interval, u.check, u.check, nil)
	return u
}

func (u *UpdateService) check(ctx context.Context) error {
	if u.feedURL == "" {
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	release, err := backoff.RetryWithData(func() (*Release, error) {
		return u.fetchLatest(ctx)
	}, bo)
	if err != nil {
		// The feed being down should not take the service down with it.
		u.logger.With("err", err).Warn("release check failed")
		return nil
	}

	previous, err := u.releaseStore.Get(ctx, latestKey)
	if err == nil && previous.Version == release.Version {
		return nil
	}

	u.logger.With("version", release.Version).Info("new bridge release available")
	return u.releaseStore.Put(ctx, latestKey, release)
}

func (u *UpdateService) fetchLatest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.feedURL, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := u.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release feed returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var release Release
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("malformed release feed: %w", err))
	}
	if release.Version == "" {
		return nil, backoff.Permanent(fmt.Errorf("release feed entry has no version"))
	}
	release.CheckedAt = time.Now().UTC()
	return &release, nil
}

// Latest returns the most recently observed release, or nil if no check
// has succeeded yet.
func (u *UpdateService) Latest(ctx context.Context) (*Release, error) {
	release, err := u.releaseStore.Get(ctx, latestKey)
	if err != nil {
		return nil, err
	}
	return release, nil
}
