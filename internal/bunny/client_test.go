package bunny

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/library/", "42", "stream-key", srv.Client()), srv
}

func TestCreateVideo(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/library/42/videos", r.URL.Path)
		assert.Equal(t, "stream-key", r.Header.Get("AccessKey"))

		var body createVideoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Temporary Title", body.Title)

		json.NewEncoder(w).Encode(map[string]any{"guid": "abc-123", "title": body.Title})
	})

	asset, err := c.CreateVideo(context.Background(), "Temporary Title", "")
	require.NoError(t, err)
	assert.True(t, asset.Complete())
	assert.Equal(t, "abc-123", asset.ID)
	assert.Equal(t, srv.URL+"/library/42/videos/abc-123", asset.UploadURL)
	assert.Equal(t, "stream-key", asset.AccessKey)
}

func TestCreateVideoWithoutGUIDIsIncomplete(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	asset, err := c.CreateVideo(context.Background(), "t", "")
	require.NoError(t, err)
	assert.False(t, asset.Complete())
}

func TestUploadBinary(t *testing.T) {
	var got []byte
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "thumb-key", r.Header.Get("AccessKey"))
		got, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	})

	err := c.UploadBinary(context.Background(), srv.URL+"/thumbnails/x", "thumb-key", strings.NewReader("png"), 3)
	require.NoError(t, err)
	assert.Equal(t, "png", string(got))
}

func TestUploadBinaryOmitsEmptyAccessKey(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header["Accesskey"]
		assert.False(t, ok)
	})

	require.NoError(t, c.UploadBinary(context.Background(), srv.URL+"/put?X-Amz-Signature=s", "", strings.NewReader("x"), 1))
}

func TestUploadBinaryNon2xx(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	err := c.UploadBinary(context.Background(), srv.URL+"/put?X-Amz-Signature=secret", "k", strings.NewReader("x"), 1)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Equal(t, "bad key", statusErr.Body)
	assert.NotContains(t, err.Error(), "secret")
}

func TestAssetInfo(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/library/42/videos/abc", r.URL.Path)
		w.Write([]byte(`{"guid":"abc","status":4,"length":61,"captions":[{"srclang":"fr","label":"French"}]}`))
	})

	info, err := c.AssetInfo(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 4, info.Status)
	assert.Equal(t, 61, info.Length)
	require.Len(t, info.Captions, 1)
	assert.Equal(t, "fr", info.Captions[0].SrcLang)
}

func TestUpdateMetadataAndCaptions(t *testing.T) {
	var paths []string
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		switch {
		case strings.HasSuffix(r.URL.Path, "/captions/en") && r.Method == http.MethodPost:
			var body captionRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "en", body.SrcLang)
			assert.Equal(t, "English", body.Label)
			assert.Empty(t, body.CaptionsFile)
		case strings.HasSuffix(r.URL.Path, "/captions/en"):
			w.Write([]byte("WEBVTT\n"))
		default:
			var body updateMetadataRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "Demo", body.Title)
		}
	})
	ctx := context.Background()

	require.NoError(t, c.UpdateMetadata(ctx, "abc", "Demo", "Test"))
	require.NoError(t, c.RequestAutoCaption(ctx, "abc", "en", "English"))
	text, err := c.FetchCaptionTrack(ctx, "abc", "en")
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT\n", text)

	assert.Equal(t, []string{
		"POST /library/42/videos/abc",
		"POST /library/42/videos/abc/captions/en",
		"GET /library/42/videos/abc/captions/en",
	}, paths)
}

func TestFetchCaptionTrackNotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := c.FetchCaptionTrack(context.Background(), "abc", "en")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestFetchCaptionTrackRejectsOversizedBody(t *testing.T) {
	size := MaxCaptionTrackSize
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("a", size)))
	})

	text, err := c.FetchCaptionTrack(context.Background(), "abc", "en")
	require.NoError(t, err)
	assert.Len(t, text, MaxCaptionTrackSize)

	size = MaxCaptionTrackSize + 1
	_, err = c.FetchCaptionTrack(context.Background(), "abc", "en")
	assert.ErrorIs(t, err, ErrTrackTooLarge)
}
