package bunny

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody bounds how much of a failed response is kept in a StatusError.
const maxErrorBody = 512

// MaxCaptionTrackSize is the largest caption body ReadCaptionTrack accepts.
const MaxCaptionTrackSize = 5 << 20

var ErrTrackTooLarge = errors.New("caption track exceeds 5MB")

// ReadCaptionTrack reads a whole caption body. Oversized bodies are an error
// rather than a truncated track.
func ReadCaptionTrack(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxCaptionTrackSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read captions: %w", err)
	}
	if len(data) > MaxCaptionTrackSize {
		return "", ErrTrackTooLarge
	}
	return string(data), nil
}

// Client talks to the Bunny Stream API for one video library.
type Client struct {
	httpClient *http.Client
	baseURL    string
	libraryID  string
	accessKey  string
}

func NewClient(baseURL, libraryID, accessKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		libraryID:  libraryID,
		accessKey:  accessKey,
	}
}

func (c *Client) videoURL(assetID string, parts ...string) string {
	u := fmt.Sprintf("%s/%s/videos", c.baseURL, c.libraryID)
	if assetID != "" {
		u += "/" + url.PathEscape(assetID)
	}
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

// CreateVideo allocates a new video object. The returned upload URL
// accepts a single PUT of the video binary authorised with AccessKey.
func (c *Client) CreateVideo(ctx context.Context, title, collectionID string) (*Asset, error) {
	var out createVideoResponse
	err := c.doJSON(ctx, http.MethodPost, c.videoURL(""), createVideoRequest{
		Title:        title,
		CollectionID: collectionID,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to create video: %w", err)
	}

	asset := &Asset{ID: out.GUID, AccessKey: c.accessKey}
	if out.GUID != "" {
		asset.UploadURL = c.videoURL(out.GUID)
	}
	return asset, nil
}

// UploadBinary PUTs body to uploadURL. The AccessKey header is omitted when
// accessKey is empty, which is how presigned URLs are used.
func (c *Client) UploadBinary(ctx context.Context, uploadURL, accessKey string, body io.Reader, size int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, body)
	if err != nil {
		return fmt.Errorf("failed to build upload request: %w", err)
	}
	if size >= 0 {
		req.ContentLength = size
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if accessKey != "" {
		req.Header.Set("AccessKey", accessKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus(req, resp)
}

func (c *Client) UpdateMetadata(ctx context.Context, assetID, title, description string) error {
	err := c.doJSON(ctx, http.MethodPost, c.videoURL(assetID), updateMetadataRequest{
		Title:       title,
		Description: description,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to update metadata: %w", err)
	}
	return nil
}

func (c *Client) AssetInfo(ctx context.Context, assetID string) (*AssetInfo, error) {
	var info AssetInfo
	if err := c.doJSON(ctx, http.MethodGet, c.videoURL(assetID), nil, &info); err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}
	return &info, nil
}

// RequestAutoCaption asks the service to generate a caption track for lang.
// An empty captionsFile selects auto-generation.
func (c *Client) RequestAutoCaption(ctx context.Context, assetID, lang, label string) error {
	err := c.doJSON(ctx, http.MethodPost, c.videoURL(assetID, "captions", lang), captionRequest{
		SrcLang: lang,
		Label:   label,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to request captions: %w", err)
	}
	return nil
}

// FetchCaptionTrack returns the raw caption text for lang.
func (c *Client) FetchCaptionTrack(ctx context.Context, assetID, lang string) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.videoURL(assetID, "captions", lang), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/vtt, text/plain, */*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return "", err
	}

	return ReadCaptionTrack(resp.Body)
}

func (c *Client) newRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("AccessKey", c.accessKey)
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(req, resp); err != nil {
		return err
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkStatus(req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	// presigned URLs carry credentials in the query
	u := *req.URL
	u.RawQuery = ""
	return &StatusError{
		Method:     req.Method,
		URL:        u.Redacted(),
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(data)),
	}
}
