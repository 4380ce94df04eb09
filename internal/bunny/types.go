package bunny

import "fmt"

// Processing states reported in AssetInfo.Status.
const (
	StatusCreated    = 0
	StatusUploaded   = 1
	StatusProcessing = 2
	StatusFinished   = 3
)

// Asset is the credential triple returned when a video is created.
type Asset struct {
	ID        string
	UploadURL string
	AccessKey string
}

// Complete reports whether every field of the triple is set.
func (a *Asset) Complete() bool {
	return a != nil && a.ID != "" && a.UploadURL != "" && a.AccessKey != ""
}

type Caption struct {
	SrcLang string `json:"srclang"`
	Label   string `json:"label"`
}

type AssetInfo struct {
	GUID     string    `json:"guid"`
	Title    string    `json:"title"`
	Status   int       `json:"status"`
	Length   int       `json:"length"`
	Captions []Caption `json:"captions"`
}

type createVideoRequest struct {
	Title        string `json:"title"`
	CollectionID string `json:"collectionId"`
}

type createVideoResponse struct {
	GUID string `json:"guid"`
}

type updateMetadataRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type captionRequest struct {
	SrcLang      string `json:"srclang"`
	Label        string `json:"label"`
	CaptionsFile string `json:"captionsFile"`
}

// StatusError is returned when the remote service answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}
