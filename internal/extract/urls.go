package extract

import (
	"strings"
)

// DefaultBaseURL is the origin relative paths are resolved against when no
// other base is configured.
const DefaultBaseURL = "https://kemono.cr"

// thumbnailRewrites maps each thumbnail marker to its full-resolution form.
// Rules apply in order: /thumbnail/data/ must collapse before the bare
// /thumbnail/ rule sees it.
var thumbnailRewrites = []struct{ marker, replacement string }{
	{"/thumbnail/data/", "/data/"},
	{"/thumbnail/", "/data/"},
	{"_thumb.", "."},
	{".thumb.", "."},
}

// Normalizer turns the URL forms found in markup and payloads into canonical
// absolute URLs on a fixed origin.
type Normalizer struct {
	Base string
}

// NewNormalizer returns a Normalizer for base, falling back to DefaultBaseURL.
func NewNormalizer(base string) Normalizer {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return Normalizer{Base: base}
}

// Canonicalize resolves absolute, protocol-relative and relative URLs.
func (n Normalizer) Canonicalize(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "http://"), strings.HasPrefix(raw, "https://"):
		return raw
	case strings.HasPrefix(raw, "//"):
		return "https:" + raw
	case strings.HasPrefix(raw, "/"):
		return n.Base + raw
	default:
		return n.Base + "/" + raw
	}
}

// Resolve canonicalizes raw and, when rewriteThumbnail is set, maps a
// thumbnail URL onto the matching full-resolution URL.
//
// The rewrite follows the origin's observed path conventions only. It is a
// best-effort guess and may name a file that does not exist, which is why the
// original thumbnail URL is returned alongside it.
func (n Normalizer) Resolve(raw string, rewriteThumbnail bool) (url, thumbnailURL string) {
	url = n.Canonicalize(raw)
	if !rewriteThumbnail || !IsThumbnail(url) {
		return url, ""
	}

	full := url
	for _, r := range thumbnailRewrites {
		full = strings.ReplaceAll(full, r.marker, r.replacement)
	}
	return full, url
}

// IsThumbnail reports whether u carries one of the known thumbnail markers.
func IsThumbnail(u string) bool {
	for _, r := range thumbnailRewrites {
		if strings.Contains(u, r.marker) {
			return true
		}
	}
	return false
}

// PostID returns the path segment following /post/, or UnknownPostID.
func PostID(u string) string {
	_, rest, found := strings.Cut(u, "/post/")
	if !found {
		return UnknownPostID
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return UnknownPostID
	}
	return rest
}

// UserID returns the path segment following /user/, or "".
func UserID(u string) string {
	_, rest, found := strings.Cut(u, "/user/")
	if !found {
		return ""
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}
