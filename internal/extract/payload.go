package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Payload is a decoded post response. The API has changed shape several
// times, so fields are read with type checks instead of a fixed struct.
type Payload map[string]interface{}

// ParsePayload decodes a JSON post response.
func ParsePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post payload: %w", err)
	}
	return p, nil
}

var bareURLPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// payloadStep is one payload shape the extractor knows about.
type payloadStep struct {
	name string
	run  func(*Extractor, Payload, *mediaSet) int
}

var payloadSteps = []payloadStep{
	{"post.file", (*Extractor).mainFileMedia},
	{"attachments", (*Extractor).attachmentsMedia},
	{"previews", (*Extractor).previewsMedia},
	{"file", (*Extractor).legacyFileMedia},
	{"files", (*Extractor).legacyListMedia},
	{"content", (*Extractor).contentMedia},
	{"videos", (*Extractor).videosMedia},
}

// PayloadMedia extracts media references from a post payload. Extraction is
// best-effort: malformed sections are skipped, and an unexpected fault yields
// an empty list instead of an error.
func (e *Extractor) PayloadMedia(p Payload) (records []MediaRecord) {
	defer func() {
		if r := recover(); r != nil {
			e.observer.Recovered("payload", fmt.Errorf("payload extraction aborted: %v", r))
			records = []MediaRecord{}
		}
	}()

	set := newMediaSet()
	if p == nil {
		return set.list()
	}
	for _, step := range payloadSteps {
		found := step.run(e, p, set)
		e.observer.Strategy("payload", step.name, found)
	}
	return set.list()
}

func (e *Extractor) mainFileMedia(p Payload, set *mediaSet) int {
	post := asObject(p["post"])
	if post == nil {
		return 0
	}
	if e.addFile(set, asObject(post["file"]), TypeMain, "api:post.file") {
		return 1
	}
	return 0
}

func (e *Extractor) attachmentsMedia(p Payload, set *mediaSet) int {
	found := 0
	if post := asObject(p["post"]); post != nil {
		for _, item := range asList(post["attachments"]) {
			if e.addFile(set, asObject(item), TypeAttachment, "api:post.attachments") {
				found++
			}
		}
	}
	for _, item := range asList(p["attachments"]) {
		if e.addFile(set, asObject(item), TypeAttachment, "api:attachments") {
			found++
		}
	}
	return found
}

func (e *Extractor) previewsMedia(p Payload, set *mediaSet) int {
	found := 0
	for _, item := range asList(p["previews"]) {
		if e.addFile(set, asObject(item), TypePreview, "api:previews") {
			found++
		}
	}
	return found
}

// legacyFileMedia handles the flat post shape, where file sits next to the
// post fields instead of under a nested post object.
func (e *Extractor) legacyFileMedia(p Payload, set *mediaSet) int {
	if asObject(p["post"]) != nil {
		return 0
	}
	if e.addFile(set, asObject(p["file"]), TypeLegacy, "api:file") {
		return 1
	}
	return 0
}

func (e *Extractor) legacyListMedia(p Payload, set *mediaSet) int {
	found := 0
	for _, item := range asList(p["files"]) {
		if s, ok := item.(string); ok {
			if set.add(MediaRecord{
				URL:    e.urls.Canonicalize(s),
				Type:   TypeLegacy,
				Source: "api:files",
			}) {
				found++
			}
			continue
		}
		if e.addFile(set, asObject(item), TypeLegacy, "api:files") {
			found++
		}
	}
	return found
}

// contentMedia scans the post body for bare media URLs, then for src
// attributes of embedded images and videos, which may be relative.
func (e *Extractor) contentMedia(p Payload, set *mediaSet) int {
	body := asString(p["content"])
	if post := asObject(p["post"]); post != nil {
		body = asString(post["content"])
	}
	if strings.TrimSpace(body) == "" {
		return 0
	}

	found := 0
	for _, match := range bareURLPattern.FindAllString(body, -1) {
		u := e.urls.Canonicalize(match)
		if kind := Classify(u); kind != KindImage && kind != KindVideo {
			continue
		}
		if set.add(MediaRecord{URL: u, Type: TypeContent, Source: "api:content"}) {
			found++
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return found
	}
	doc.Find("img[src], video[src], source[src]").Each(func(_ int, s *goquery.Selection) {
		u := e.urls.Canonicalize(s.AttrOr("src", ""))
		if kind := Classify(u); kind != KindImage && kind != KindVideo {
			return
		}
		if set.add(MediaRecord{URL: u, Type: TypeHTML, Source: "api:content[src]"}) {
			found++
		}
	})
	return found
}

func (e *Extractor) videosMedia(p Payload, set *mediaSet) int {
	found := 0
	for _, item := range asList(p["videos"]) {
		if e.addFile(set, asObject(item), TypeVideo, "api:videos") {
			found++
		}
	}
	return found
}

// addFile adds a {server, path, name} file object. server is optional; when
// present it replaces the configured origin. A server copy of a path already
// claimed on the origin is the same file and is dropped.
func (e *Extractor) addFile(set *mediaSet, file map[string]interface{}, typ MediaType, source string) bool {
	if file == nil {
		return false
	}
	path := strings.TrimSpace(asString(file["path"]))
	if path == "" {
		return false
	}

	u := e.urls.Canonicalize(path)
	if server := strings.TrimRight(asString(file["server"]), "/"); server != "" && strings.HasPrefix(path, "/") {
		if set.has(u) {
			return false
		}
		u = e.urls.Canonicalize(server + path)
	}

	return set.add(MediaRecord{
		URL:      u,
		Filename: strings.TrimSpace(asString(file["name"])),
		Type:     typ,
		Source:   source,
	})
}

func asObject(v interface{}) map[string]interface{} {
	switch o := v.(type) {
	case map[string]interface{}:
		return o
	case Payload:
		return o
	default:
		return nil
	}
}

func asList(v interface{}) []interface{} {
	l, _ := v.([]interface{})
	return l
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
