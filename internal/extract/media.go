package extract

import (
	"html"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	fileThumbSelector      = "a.fileThumb[download]"
	attachmentSelector     = ".post__attachments li, .post__attachment"
	attachmentNameSelector = ".post__attachment-name"
	dataAttrSelector       = "[data-file], [data-url]"
)

var (
	imageSourceAttrs = []string{"data-src", "src", "data-original"}
	videoSourceAttrs = []string{"src", "data-src"}
	downloadMarkers  = []string{"/data/", "/download/", "?f="}
	imageSkipMarkers = []string{"avatar", "icon"}
)

// Raw markup patterns, tried in order. The kemono data paths come before the
// generic extension pattern so their matches claim URLs first.
var mediaURLPatterns = []struct {
	name    string
	pattern *regexp.Regexp
}{
	{"cdn", regexp.MustCompile(`(?:https?:)?//[\w.-]*kemono\.\w+/data/[^\s"'<>()]+`)},
	{"data-path", regexp.MustCompile(`["'](/data/[^\s"'<>]+)["']`)},
	{"extension", regexp.MustCompile(`(?i)(?:https?:)?//[^\s"'<>()]+\.(?:jpe?g|png|gif|webp|bmp|tiff?|svg|mp4|webm|avi|mov|wmv|flv|mkv|m4v|3gp|ogv|zip|rar|7z|tar|tgz|gz|bz2|xz)(?:\?[^\s"'<>()]*)?`)},
}

// mediaStrategy is one markup media strategy. Unlike post tiers, every
// strategy runs and results are merged in this order.
type mediaStrategy struct {
	name string
	run  func(*Extractor, *goquery.Document, *mediaSet) int
}

var mediaStrategies = []mediaStrategy{
	{string(TypeFileThumb), (*Extractor).fileThumbMedia},
	{string(TypeAttachmentSection), (*Extractor).attachmentMedia},
	{string(TypeImage), (*Extractor).imageMedia},
	{string(TypeVideo), (*Extractor).videoMedia},
	{string(TypeDownloadLink), (*Extractor).downloadLinkMedia},
	{string(TypeDataAttribute), (*Extractor).dataAttributeMedia},
	{string(TypeRegexExtracted), (*Extractor).regexMedia},
}

// Media discovers media references on a rendered post page. Records come
// back in strategy order and each canonical URL appears once.
func (e *Extractor) Media(doc *goquery.Document) []MediaRecord {
	set := newMediaSet()
	if doc == nil {
		return set.list()
	}
	for _, s := range mediaStrategies {
		found := s.run(e, doc, set)
		e.observer.Strategy("media", s.name, found)
	}
	return set.list()
}

func (e *Extractor) fileThumbMedia(doc *goquery.Document, set *mediaSet) int {
	found := 0
	doc.Find(fileThumbSelector).Each(func(_ int, a *goquery.Selection) {
		if set.add(MediaRecord{
			URL:      e.urls.Canonicalize(a.AttrOr("href", "")),
			Filename: strings.TrimSpace(a.AttrOr("download", "")),
			Type:     TypeFileThumb,
			Source:   "html:a.fileThumb",
		}) {
			found++
		}
	})
	return found
}

func (e *Extractor) attachmentMedia(doc *goquery.Document, set *mediaSet) int {
	found := 0
	doc.Find(attachmentSelector).Each(func(_ int, section *goquery.Selection) {
		a := section.Find("a[href]").First()
		if a.Length() == 0 {
			return
		}
		name := firstNonEmpty(
			cleanText(a.Text()),
			strings.TrimSpace(a.AttrOr("download", "")),
			cleanText(section.Find(attachmentNameSelector).First().Text()),
		)
		if set.add(MediaRecord{
			URL:      e.urls.Canonicalize(a.AttrOr("href", "")),
			Filename: name,
			Type:     TypeAttachment,
			Source:   "html:attachment-section",
		}) {
			found++
		}
	})
	return found
}

func (e *Extractor) imageMedia(doc *goquery.Document, set *mediaSet) int {
	found := 0
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		attr, src := firstAttr(img, imageSourceAttrs...)
		if src == "" || strings.HasPrefix(src, "data:") || containsAny(src, imageSkipMarkers...) {
			return
		}
		u, thumb := e.urls.Resolve(src, true)
		if set.has(thumb) {
			return
		}
		if set.add(MediaRecord{
			URL:          u,
			ThumbnailURL: thumb,
			Filename:     strings.TrimSpace(img.AttrOr("alt", "")),
			Type:         TypeImage,
			Source:       "html:img[" + attr + "]",
		}) {
			found++
		}
	})
	return found
}

func (e *Extractor) videoMedia(doc *goquery.Document, set *mediaSet) int {
	found := 0
	doc.Find("video").Each(func(_ int, video *goquery.Selection) {
		attr, src := firstAttr(video, videoSourceAttrs...)
		if src == "" {
			attr = "source"
			src = strings.TrimSpace(video.Find("source[src]").First().AttrOr("src", ""))
		}
		if src == "" {
			return
		}
		if set.add(MediaRecord{
			URL:    e.urls.Canonicalize(src),
			Type:   TypeVideo,
			Source: "html:video[" + attr + "]",
		}) {
			found++
		}
	})
	return found
}

func (e *Extractor) downloadLinkMedia(doc *goquery.Document, set *mediaSet) int {
	found := 0
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		download, hasDownload := a.Attr("download")
		if !hasDownload && !containsAny(href, downloadMarkers...) {
			return
		}
		u := e.urls.Canonicalize(href)
		if !IsDownloadable(u) {
			return
		}
		if set.add(MediaRecord{
			URL:      u,
			Filename: firstNonEmpty(strings.TrimSpace(download), queryFilename(u)),
			Type:     TypeDownloadLink,
			Source:   "html:a[download]",
		}) {
			found++
		}
	})
	return found
}

func (e *Extractor) dataAttributeMedia(doc *goquery.Document, set *mediaSet) int {
	found := 0
	doc.Find(dataAttrSelector).Each(func(_ int, el *goquery.Selection) {
		attr, v := firstAttr(el, "data-file", "data-url")
		if v == "" || strings.Contains(v, "/thumbnail/") {
			return
		}
		if set.add(MediaRecord{
			URL:    e.urls.Canonicalize(v),
			Type:   TypeDataAttribute,
			Source: "html:[" + attr + "]",
		}) {
			found++
		}
	})
	return found
}

func (e *Extractor) regexMedia(doc *goquery.Document, set *mediaSet) int {
	raw := rawMarkup(doc)
	found := 0
	for _, p := range mediaURLPatterns {
		for _, m := range p.pattern.FindAllStringSubmatch(raw, -1) {
			match := m[0]
			if len(m) > 1 {
				match = m[1]
			}
			match = html.UnescapeString(match)
			if strings.Contains(match, "/thumbnail/") {
				continue
			}
			u := e.urls.Canonicalize(match)
			if !IsDownloadable(u) {
				continue
			}
			if set.add(MediaRecord{
				URL:      u,
				Filename: queryFilename(u),
				Type:     TypeRegexExtracted,
				Source:   "html:regex:" + p.name,
			}) {
				found++
			}
		}
	}
	return found
}

// firstAttr returns the first non-empty attribute among names.
func firstAttr(s *goquery.Selection, names ...string) (string, string) {
	for _, name := range names {
		if v := strings.TrimSpace(s.AttrOr(name, "")); v != "" {
			return name, v
		}
	}
	return "", ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// queryFilename returns the kemono "f" query parameter, which carries the
// original upload name on data URLs.
func queryFilename(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(parsed.Query().Get("f"))
}

// FilenameFromURL returns the name a record should be saved under.
func FilenameFromURL(u string) string {
	if name := queryFilename(u); name != "" {
		return name
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return ""
	}
	name := path.Base(parsed.Path)
	if name == "/" || name == "." {
		return ""
	}
	return name
}
