package extract

import (
	"github.com/PuerkitoBio/goquery"
)

// Observer receives diagnostics from the extractors. Implementations must be
// safe for concurrent use when one Extractor is shared between goroutines.
type Observer interface {
	// Strategy is called once per strategy run with the number of records it
	// contributed.
	Strategy(component, strategy string, found int)
	// Recovered is called when a malformed input aborted an extraction.
	Recovered(component string, err error)
}

// NopObserver discards all diagnostics.
type NopObserver struct{}

func (NopObserver) Strategy(string, string, int) {}
func (NopObserver) Recovered(string, error)      {}

// Option configures an Extractor.
type Option func(*Extractor)

// WithObserver routes diagnostics to o.
func WithObserver(o Observer) Option {
	return func(e *Extractor) {
		if o != nil {
			e.observer = o
		}
	}
}

// Extractor bundles the post, media and metadata extractors for one origin.
// It holds no mutable state; every method is a pure function of its input.
type Extractor struct {
	urls     Normalizer
	observer Observer
}

// New returns an Extractor that resolves relative URLs against base.
func New(base string, opts ...Option) *Extractor {
	e := &Extractor{
		urls:     NewNormalizer(base),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Normalizer exposes the URL normalizer the extractor resolves against.
func (e *Extractor) Normalizer() Normalizer {
	return e.urls
}

// mediaSet merges media records in insertion order; the first record for a
// canonical URL wins.
type mediaSet struct {
	seen    map[string]struct{}
	records []MediaRecord
}

func newMediaSet() *mediaSet {
	return &mediaSet{seen: make(map[string]struct{})}
}

func (s *mediaSet) has(u string) bool {
	_, ok := s.seen[u]
	return ok
}

// add appends r unless its URL is taken and reports whether it did. A
// record's thumbnail URL is claimed too, so it is never emitted on its own.
func (s *mediaSet) add(r MediaRecord) bool {
	if r.URL == "" || s.has(r.URL) {
		return false
	}
	r.MediaType = Classify(r.URL)
	s.seen[r.URL] = struct{}{}
	if r.ThumbnailURL != "" {
		s.seen[r.ThumbnailURL] = struct{}{}
	}
	s.records = append(s.records, r)
	return true
}

func (s *mediaSet) list() []MediaRecord {
	if s.records == nil {
		return []MediaRecord{}
	}
	return s.records
}

// rawMarkup returns the document as re-serialized by the parser for the regex
// fallbacks. Attribute quoting is normalized to double quotes and entities in
// attributes are re-escaped, so matches are unescaped before use.
func rawMarkup(doc *goquery.Document) string {
	html, err := doc.Html()
	if err != nil {
		return ""
	}
	return html
}
