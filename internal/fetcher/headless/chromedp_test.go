package headless

import (
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChromedpValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{NavigationTimeout: -time.Second})
	assert.Error(t, err)
	_, err = NewChromedp(Config{Settle: -time.Second})
	assert.Error(t, err)

	f, err := NewChromedp(Config{})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	assert.Equal(t, defaultWaitSelector, f.cfg.WaitSelector)
	assert.Equal(t, defaultNavigationTimeout, f.navTimeout())
}

func TestNavTimeoutOverride(t *testing.T) {
	t.Parallel()

	f := &Fetcher{cfg: Config{NavigationTimeout: time.Second}}
	assert.Equal(t, time.Second, f.navTimeout())
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	got := toNetworkHeaders(http.Header{
		"X-Multi":  {"a", "b"},
		"X-Single": {"one"},
		"X-Empty":  {},
	})
	assert.Equal(t, []string{"a", "b"}, got["X-Multi"])
	assert.Equal(t, "one", got["X-Single"])
	assert.NotContains(t, got, "X-Empty")
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 500, URL: "https://psl.test/logo.png"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  404,
			URL:     "https://psl.test/thredds/catalog/x/catalog.html",
			Headers: network.Headers{"Content-Type": "text/html", "X-Ids": []any{"a", "b"}},
		},
	})
	status, headers, finalURL := meta.snapshotWithFallbacks("https://req", "https://loc")
	assert.Equal(t, 404, status)
	assert.Equal(t, "text/html", headers.Get("Content-Type"))
	assert.Equal(t, []string{"a", "b"}, headers.Values("X-Ids"))
	assert.Equal(t, "https://psl.test/thredds/catalog/x/catalog.html", finalURL)

	status, headers, finalURL = newResponseMeta().snapshotWithFallbacks("https://req", "https://loc")
	assert.Equal(t, http.StatusOK, status)
	assert.NotNil(t, headers)
	assert.Equal(t, "https://loc", finalURL)

	_, _, finalURL = newResponseMeta().snapshotWithFallbacks("https://req", "")
	assert.Equal(t, "https://req", finalURL)
}
