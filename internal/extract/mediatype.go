package extract

import (
	"regexp"
)

// Extensions must end the path; a query string or fragment may follow.
var (
	videoExt   = regexp.MustCompile(`(?i)\.(mp4|webm|avi|mov|wmv|flv|mkv|m4v|3gp|ogv)(?:[?#].*)?$`)
	archiveExt = regexp.MustCompile(`(?i)\.(zip|rar|7z|tar|tar\.gz|tgz|tar\.bz2|tbz2|tar\.xz|txz)(?:[?#].*)?$`)
	imageExt   = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|bmp|tiff?|svg)(?:[?#].*)?$`)
)

// Classify maps a URL to its media kind. Video is checked before archive and
// archive before image; the first match wins.
func Classify(u string) Kind {
	switch {
	case videoExt.MatchString(u):
		return KindVideo
	case archiveExt.MatchString(u):
		return KindArchive
	case imageExt.MatchString(u):
		return KindImage
	default:
		return KindUnknown
	}
}

// IsDownloadable reports whether u points at an image, video or archive.
func IsDownloadable(u string) bool {
	return Classify(u) != KindUnknown
}
