// Package update checks GitHub releases for a newer version of the
// application. Checks are best-effort; any failure is reported to the caller
// and never interrupts other work.
package update

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	"go.uber.org/zap"

	yt2convert "github.com/hossez/yt2convert"
	"github.com/hossez/yt2convert/internal/store"
)

const defaultEndpoint = "https://api.github.com/repos/hossez/yt2convert/releases/latest"

// lastCheckLayout is the granularity of the automatic check: at most once per
// calendar day.
const lastCheckLayout = "2006-01-02"

// Release describes the latest published release.
type Release struct {
	Version *goversion.Version
	TagName string
	// URL is the release page for the user to open.
	URL string
	// Notes is the release body text.
	Notes string
}

type releasePayload struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
	Draft   bool   `json:"draft"`
}

// Checker queries the releases endpoint and compares versions.
type Checker struct {
	// Endpoint overrides the GitHub API URL, for tests.
	Endpoint string
	// Client defaults to a client with a 10 second timeout.
	Client *http.Client

	log *zap.SugaredLogger
}

func NewChecker() *Checker {
	return &Checker{
		Endpoint: defaultEndpoint,
		Client:   &http.Client{Timeout: 10 * time.Second},
		log:      zap.S().Named("update"),
	}
}

// Latest fetches the most recent published release.
func (c *Checker) Latest(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", yt2convert.ErrNetwork, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: releases endpoint returned %s", yt2convert.ErrNetwork, resp.Status)
	}

	var payload releasePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	if payload.Draft || payload.TagName == "" {
		return nil, fmt.Errorf("no published release")
	}

	v, err := goversion.NewVersion(strings.TrimPrefix(payload.TagName, "v"))
	if err != nil {
		return nil, fmt.Errorf("release tag %q: %w", payload.TagName, err)
	}
	return &Release{
		Version: v,
		TagName: payload.TagName,
		URL:     payload.HTMLURL,
		Notes:   payload.Body,
	}, nil
}

// Check fetches the latest release and reports whether it is newer than
// current.
func (c *Checker) Check(ctx context.Context, current string) (*Release, bool, error) {
	cur, err := goversion.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return nil, false, fmt.Errorf("current version %q: %w", current, err)
	}
	latest, err := c.Latest(ctx)
	if err != nil {
		return nil, false, err
	}
	return latest, latest.Version.GreaterThan(cur), nil
}

// MaybeCheck runs an automatic check if the user has them enabled and none has
// happened today. It records the check date in settings regardless of outcome,
// so a failing endpoint is not hammered. Returns (nil, false, nil) when the
// check was skipped.
func (c *Checker) MaybeCheck(ctx context.Context, settings *store.SettingsStore, current string) (*Release, bool, error) {
	s := settings.Load()
	if !s.AutoUpdateCheck {
		return nil, false, nil
	}
	today := time.Now().UTC().Format(lastCheckLayout)
	if s.LastUpdateCheck == today {
		return nil, false, nil
	}
	if err := settings.Update(func(s *store.Settings) {
		s.LastUpdateCheck = today
	}); err != nil {
		c.log.Warnw("could not record update check date", "error", err)
	}
	return c.Check(ctx, current)
}
