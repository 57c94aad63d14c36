package extract

import (
	"time"

	"github.com/araddon/dateparse"
)

// PostSource records which post discovery tier produced a PostRecord.
type PostSource string

const (
	SourceStructuredCard PostSource = "structured-card"
	SourceListItem       PostSource = "list-item"
	SourceGenericLink    PostSource = "generic-link"
	SourceFallbackScan   PostSource = "fallback-scan"
)

// MediaType is the provenance tag of a MediaRecord.
type MediaType string

const (
	TypeMain              MediaType = "main"
	TypeAttachment        MediaType = "attachment"
	TypePreview           MediaType = "preview"
	TypeLegacy            MediaType = "legacy"
	TypeContent           MediaType = "content"
	TypeFileThumb         MediaType = "file-thumb"
	TypeAttachmentSection MediaType = "attachment-section"
	TypeImage             MediaType = "image"
	TypeVideo             MediaType = "video"
	TypeDownloadLink      MediaType = "download-link"
	TypeDataAttribute     MediaType = "data-attribute"
	TypeRegexExtracted    MediaType = "regex-extracted"
	TypeHTML              MediaType = "html"
)

// Kind is the coarse media classification derived from a URL's extension.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindArchive Kind = "archive"
	KindUnknown Kind = "unknown"
)

const (
	UntitledPost  = "Untitled"
	UnknownPostID = "unknown"
	UnknownUser   = "unknown_user"
)

// PostRecord is a post discovered on a rendered page.
type PostRecord struct {
	URL       string     `json:"url"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Published string     `json:"published,omitempty"`
	Source    PostSource `json:"source,omitempty"`
}

// PublishedTime parses the raw published text. The raw string stays the
// source of truth; ok is false when it is empty or not a recognisable date.
func (p PostRecord) PublishedTime() (time.Time, bool) {
	if p.Published == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseAny(p.Published)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MediaRecord is a downloadable media reference.
type MediaRecord struct {
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	Type         MediaType `json:"type"`
	MediaType    Kind      `json:"media_type"`
	Source       string    `json:"source"`
}

// Metadata holds the descriptive fields of a single rendered post page.
type Metadata struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Published string `json:"published,omitempty"`
	User      string `json:"user,omitempty"`
}
