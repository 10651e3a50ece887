package scraper

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/prodex/models"
)

func TestBlockedURLPatterns(t *testing.T) {
	got := blockedURLPatterns(false, []string{" *.woff2 ", "", "*.mp4"})
	assert.Equal(t, []string{"*.woff2", "*.mp4"}, got)

	got = blockedURLPatterns(true, nil)
	require.Len(t, got, 2*len(adDomains))
	assert.Contains(t, got, "*://doubleclick.net/*")
	assert.Contains(t, got, "*://*.doubleclick.net/*")
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want models.FetchKind
	}{
		{"deadline", context.DeadlineExceeded, models.FetchTimeout},
		{"cancelled", context.Canceled, models.FetchTimeout},
		{"wrapped deadline", errors.Join(errors.New("navigate"), context.DeadlineExceeded), models.FetchTimeout},
		{"other", errors.New("target closed"), models.FetchRenderFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := categorizeError(tt.err, "render")
			assert.Equal(t, tt.want, fe.Kind)
			assert.ErrorIs(t, fe, tt.err)
		})
	}
}

func TestIdleTrackerSettles(t *testing.T) {
	idle := newIdleTracker()
	idle.observe(&network.EventRequestWillBeSent{RequestID: "1"})
	idle.observe(&network.EventRequestWillBeSent{RequestID: "2"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		idle.observe(&network.EventLoadingFinished{RequestID: "1"})
		idle.observe(&network.EventLoadingFailed{RequestID: "2"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.True(t, idle.wait(ctx, 50*time.Millisecond))
}

func TestIdleTrackerTimesOut(t *testing.T) {
	idle := newIdleTracker()
	idle.observe(&network.EventRequestWillBeSent{RequestID: "long-poll"})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.False(t, idle.wait(ctx, 10*time.Millisecond))
}

// fakeCDP records every CDP method it is asked to call.
type fakeCDP struct {
	methods []string
	fail    map[string]error
}

func (f *fakeCDP) Call(_ context.Context, _, method string, _ interface{}) ([]byte, error) {
	f.methods = append(f.methods, method)
	if err := f.fail[method]; err != nil {
		return nil, err
	}
	return []byte("{}"), nil
}

func TestBlockURLsLogsNetworkEnableFailure(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))
	c := &fakeCDP{fail: map[string]error{"Network.enable": errors.New("target closed")}}

	blockURLs(c, []string{"*.mp4"}, log)

	assert.Equal(t, []string{"Network.enable", "Network.setBlockedURLs"}, c.methods)
	assert.Contains(t, buf.String(), "enable network domain failed")
	assert.Contains(t, buf.String(), "target closed")
}

func TestBlockURLsNoPatterns(t *testing.T) {
	c := &fakeCDP{}
	blockURLs(c, nil, slog.Default())
	assert.Empty(t, c.methods)
}
