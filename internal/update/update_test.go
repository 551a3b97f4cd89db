package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	yt2convert "github.com/hossez/yt2convert"
	"github.com/hossez/yt2convert/internal/store"
)

func releaseServer(t *testing.T, body string, status int) *Checker {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	c := NewChecker()
	c.Endpoint = srv.URL
	return c
}

func TestCheckNewerAvailable(t *testing.T) {
	assert := assert_.New(t)
	c := releaseServer(t, `{"tag_name": "v2.1.0", "html_url": "https://example.com/v2.1.0", "body": "fixes"}`, http.StatusOK)

	rel, newer, err := c.Check(context.Background(), "2.0.3")
	require.NoError(t, err)
	assert.True(newer)
	assert.Equal("v2.1.0", rel.TagName)
	assert.Equal("https://example.com/v2.1.0", rel.URL)
	assert.Equal("fixes", rel.Notes)
}

func TestCheckUpToDate(t *testing.T) {
	assert := assert_.New(t)
	c := releaseServer(t, `{"tag_name": "v2.1.0"}`, http.StatusOK)

	_, newer, err := c.Check(context.Background(), "v2.1.0")
	require.NoError(t, err)
	assert.False(newer)
}

func TestCheckServerError(t *testing.T) {
	assert := assert_.New(t)
	c := releaseServer(t, `{"message": "rate limited"}`, http.StatusForbidden)

	_, _, err := c.Check(context.Background(), "1.0.0")
	assert.ErrorIs(err, yt2convert.ErrNetwork)
}

func TestCheckDraftRelease(t *testing.T) {
	assert := assert_.New(t)
	c := releaseServer(t, `{"tag_name": "v3.0.0", "draft": true}`, http.StatusOK)

	_, _, err := c.Check(context.Background(), "1.0.0")
	assert.Error(err)
}

func TestMaybeCheckRespectsSettings(t *testing.T) {
	assert := assert_.New(t)
	c := releaseServer(t, `{"tag_name": "v9.0.0"}`, http.StatusOK)
	settings := store.NewSettingsStore(t.TempDir())

	// Disabled: no check at all
	require.NoError(t, settings.Update(func(s *store.Settings) { s.AutoUpdateCheck = false }))
	rel, newer, err := c.MaybeCheck(context.Background(), settings, "1.0.0")
	require.NoError(t, err)
	assert.Nil(rel)
	assert.False(newer)

	// Enabled: first check of the day runs and records the date
	require.NoError(t, settings.Update(func(s *store.Settings) { s.AutoUpdateCheck = true }))
	rel, newer, err = c.MaybeCheck(context.Background(), settings, "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, rel)
	assert.True(newer)
	assert.NotEmpty(settings.Load().LastUpdateCheck)

	// Second check the same day is skipped
	rel, _, err = c.MaybeCheck(context.Background(), settings, "1.0.0")
	require.NoError(t, err)
	assert.Nil(rel)
}
