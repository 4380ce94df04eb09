package transcript

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snapcast/internal/bunny"
)

const sampleVTT = `WEBVTT

00:00:00.000 --> 00:00:04.000
Hey team, quick update.

00:01:12.500 --> 00:01:15.000
We finalized the
top priorities.
`

const sampleSRT = `1
00:00:01,000 --> 00:00:02,000
Hello

2
00:00:05,000 --> 00:00:06,000
World
`

type fakeInfo struct {
	info *bunny.AssetInfo
	err  error
}

func (f *fakeInfo) AssetInfo(context.Context, string) (*bunny.AssetInfo, error) {
	return f.info, f.err
}

type stubStrategy struct {
	name  string
	body  string
	err   error
	calls atomic.Int32
	key   Key
	delay time.Duration
}

func (s *stubStrategy) Name() string { return s.name }

func (s *stubStrategy) Attempt(ctx context.Context, key Key) (string, error) {
	s.calls.Add(1)
	s.key = key
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return s.body, s.err
}

func captioned(lang string) *fakeInfo {
	return &fakeInfo{info: &bunny.AssetInfo{
		GUID:     "a1b2c3d4-e5f6",
		Status:   4,
		Captions: []bunny.Caption{{SrcLang: lang, Label: "Track"}},
	}}
}

func TestResolveZeroCaptionsMakesNoTierCalls(t *testing.T) {
	tiers := []*stubStrategy{{name: "api"}, {name: "cdn"}, {name: "embed"}}
	r := NewResolver(&fakeInfo{info: &bunny.AssetInfo{Status: 4}}, time.Second, tiers[0], tiers[1], tiers[2])

	res := r.Resolve(context.Background(), "abc")
	assert.Equal(t, StatusUnavailable, res.Status)
	for _, s := range tiers {
		assert.Zero(t, s.calls.Load(), s.name)
	}
}

func TestResolveAssetInfoFailure(t *testing.T) {
	api := &stubStrategy{name: "api", body: sampleVTT}
	r := NewResolver(&fakeInfo{err: errors.New("down")}, time.Second, api)

	assert.Equal(t, StatusUnavailable, r.Resolve(context.Background(), "abc").Status)
	assert.Zero(t, api.calls.Load())
}

func TestResolveFallsThroughInOrder(t *testing.T) {
	api := &stubStrategy{name: "api", err: errors.New("404")}
	cdn := &stubStrategy{name: "cdn", body: sampleVTT}
	embed := &stubStrategy{name: "embed", body: sampleSRT}
	r := NewResolver(captioned("fr"), time.Second, api, cdn, embed)

	res := r.Resolve(context.Background(), "abc")
	require.Equal(t, StatusEntries, res.Status)
	assert.Equal(t, "cdn", res.Source)
	assert.Equal(t, "fr", res.Language)
	assert.Equal(t, int32(1), api.calls.Load())
	assert.Equal(t, int32(1), cdn.calls.Load())
	assert.Zero(t, embed.calls.Load())
	assert.Equal(t, Key{AssetID: "abc", GUID: "a1b2c3d4-e5f6", Lang: "fr"}, cdn.key)
}

func TestResolveSkipsEmptyBodies(t *testing.T) {
	api := &stubStrategy{name: "api", body: "  \n"}
	embed := &stubStrategy{name: "embed", body: sampleSRT}
	r := NewResolver(captioned(""), time.Second, api, embed)

	res := r.Resolve(context.Background(), "abc")
	require.Equal(t, StatusEntries, res.Status)
	assert.Equal(t, "embed", res.Source)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, []Entry{
		{Start: time.Second, Timestamp: "00:01", Text: "Hello"},
		{Start: 5 * time.Second, Timestamp: "00:05", Text: "World"},
	}, res.Entries)
}

func TestResolveAllTiersFail(t *testing.T) {
	api := &stubStrategy{name: "api", err: errors.New("x")}
	cdn := &stubStrategy{name: "cdn", err: errors.New("y")}
	r := NewResolver(captioned("en"), time.Second, api, cdn)

	assert.Equal(t, StatusUnavailable, r.Resolve(context.Background(), "abc").Status)
}

func TestResolveTierTimeout(t *testing.T) {
	slow := &stubStrategy{name: "api", body: sampleVTT, delay: time.Second}
	cdn := &stubStrategy{name: "cdn", body: sampleVTT}
	r := NewResolver(captioned("en"), 20*time.Millisecond, slow, cdn)

	res := r.Resolve(context.Background(), "abc")
	assert.Equal(t, "cdn", res.Source)
}

func TestResolveUnparseableBodyIsRaw(t *testing.T) {
	api := &stubStrategy{name: "api", body: "just some plain words"}
	r := NewResolver(captioned("en"), time.Second, api)

	res := r.Resolve(context.Background(), "abc")
	assert.Equal(t, StatusRaw, res.Status)
	assert.Equal(t, "just some plain words", res.Raw)
	assert.Empty(t, res.Entries)
}

func TestParseWebVTT(t *testing.T) {
	entries, ok := Parse(sampleVTT)
	require.True(t, ok)
	require.Len(t, entries, 2)
	assert.Equal(t, "00:00", entries[0].Timestamp)
	assert.Equal(t, "Hey team, quick update.", entries[0].Text)
	assert.Equal(t, "01:12", entries[1].Timestamp)
	assert.Equal(t, "We finalized the top priorities.", entries[1].Text)
}

func TestParseRejectsNonSubtitles(t *testing.T) {
	for _, text := range []string{"", "hello", "WEBVTT\n\n", "1\nnot a timing line"} {
		_, ok := Parse(text)
		assert.False(t, ok, text)
	}
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "00:00", formatTimestamp(0))
	assert.Equal(t, "01:05", formatTimestamp(65*time.Second+400*time.Millisecond))
	assert.Equal(t, "75:00", formatTimestamp(75*time.Minute))
}

func TestHTTPStrategies(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Host+" "+r.URL.Path)
		if r.URL.Path == "/embed/42/abc/captions/en.vtt" {
			w.Write([]byte(sampleVTT))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	key := Key{AssetID: "abc", GUID: "a1b2c3d4-e5f6", Lang: "en"}
	ctx := context.Background()

	cdn := &CDNStrategy{Template: srv.URL + "/vz-{prefix}/{asset}/captions/{lang}.vtt", HTTPClient: srv.Client()}
	_, err := cdn.Attempt(ctx, key)
	assert.ErrorContains(t, err, "unexpected status 404")

	embed := &EmbedStrategy{BaseURL: srv.URL + "/embed/", LibraryID: "42", HTTPClient: srv.Client()}
	body, err := embed.Attempt(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, sampleVTT, body)

	require.Len(t, paths, 2)
	assert.Contains(t, paths[0], "/vz-a1b2c3d4/abc/captions/en.vtt")
}

type fetcher struct{ lang string }

func (f *fetcher) FetchCaptionTrack(_ context.Context, _, lang string) (string, error) {
	f.lang = lang
	return sampleSRT, nil
}

func TestAPIStrategy(t *testing.T) {
	f := &fetcher{}
	body, err := (&APIStrategy{Client: f}).Attempt(context.Background(), Key{AssetID: "abc", Lang: "de"})
	require.NoError(t, err)
	assert.Equal(t, sampleSRT, body)
	assert.Equal(t, "de", f.lang)
}

func TestCDNStrategyRejectsOversizedTrack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("WEBVTT\n\n" + strings.Repeat("x", bunny.MaxCaptionTrackSize)))
	}))
	defer srv.Close()

	cdn := &CDNStrategy{Template: srv.URL + "/{asset}/{lang}.vtt", HTTPClient: srv.Client()}
	_, err := cdn.Attempt(context.Background(), Key{AssetID: "abc", Lang: "en"})
	assert.ErrorIs(t, err, bunny.ErrTrackTooLarge)
}

type stalledInfo struct{}

func (stalledInfo) AssetInfo(ctx context.Context, _ string) (*bunny.AssetInfo, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveBoundsAssetInfoLookup(t *testing.T) {
	tier := &stubStrategy{name: "api", body: sampleVTT}
	r := NewResolver(stalledInfo{}, 50*time.Millisecond, tier)

	start := time.Now()
	res := r.Resolve(context.Background(), "abc")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, StatusUnavailable, res.Status)
	assert.Zero(t, tier.calls.Load())
}
