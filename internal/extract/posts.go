package extract

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	postCardSelector     = "article.post-card"
	postCardLinkSelector = "a[href]"
	postCardTitle        = "header.post-card__header"
	postListSelector     = ".card-list__items > article, li.post-list__item, div.post-list__item"
	postLinkSelector     = `a[href*="/post/"]`
	postListTitle        = ".post-card__title"
)

var postHrefPattern = regexp.MustCompile(`href\s*=\s*["']([^"']*/post/[^"']*)["']`)

// postTier is one post discovery strategy. Tiers run in order and the first
// one to produce a record ends the search.
type postTier struct {
	source PostSource
	run    func(*Extractor, *goquery.Document) []PostRecord
}

var postTiers = []postTier{
	{SourceStructuredCard, (*Extractor).cardPosts},
	{SourceListItem, (*Extractor).listItemPosts},
	{SourceGenericLink, (*Extractor).linkPosts},
	{SourceFallbackScan, (*Extractor).scanPosts},
}

// Posts discovers the posts listed on a rendered page. No records at all is a
// valid result, not an error.
func (e *Extractor) Posts(doc *goquery.Document) []PostRecord {
	if doc == nil {
		return []PostRecord{}
	}
	for _, tier := range postTiers {
		records := tier.run(e, doc)
		e.observer.Strategy("posts", string(tier.source), len(records))
		if len(records) > 0 {
			return records
		}
	}
	return []PostRecord{}
}

// postSet keeps one record per post id within a tier.
type postSet struct {
	seen    map[string]struct{}
	records []PostRecord
}

func newPostSet() *postSet {
	return &postSet{seen: make(map[string]struct{})}
}

func (s *postSet) add(r PostRecord) {
	if r.URL == "" {
		return
	}
	if _, ok := s.seen[r.ID]; ok {
		return
	}
	s.seen[r.ID] = struct{}{}
	s.records = append(s.records, r)
}

func (e *Extractor) cardPosts(doc *goquery.Document) []PostRecord {
	set := newPostSet()
	doc.Find(postCardSelector).Each(func(_ int, card *goquery.Selection) {
		href, ok := card.Find(postCardLinkSelector).First().Attr("href")
		if !ok {
			return
		}
		u := e.urls.Canonicalize(href)

		id := strings.TrimSpace(card.AttrOr("data-id", ""))
		if id == "" {
			id = PostID(u)
		}

		published := strings.TrimSpace(card.Find("time[datetime]").First().AttrOr("datetime", ""))
		if published == "" {
			published = cleanText(card.Find(".timestamp").First().Text())
		}

		set.add(PostRecord{
			URL:       u,
			ID:        id,
			Title:     firstNonEmpty(cleanText(card.Find(postCardTitle).First().Text()), UntitledPost),
			Published: published,
			Source:    SourceStructuredCard,
		})
	})
	return set.records
}

func (e *Extractor) listItemPosts(doc *goquery.Document) []PostRecord {
	set := newPostSet()
	doc.Find(postListSelector).Each(func(_ int, item *goquery.Selection) {
		link := item.Find(postLinkSelector).First()
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		u := e.urls.Canonicalize(href)
		set.add(PostRecord{
			URL: u,
			ID:  PostID(u),
			Title: firstNonEmpty(
				strings.TrimSpace(link.AttrOr("title", "")),
				cleanText(item.Find(postListTitle).First().Text()),
				UntitledPost,
			),
			Published: strings.TrimSpace(item.Find("time[datetime]").First().AttrOr("datetime", "")),
			Source:    SourceListItem,
		})
	})
	return set.records
}

func (e *Extractor) linkPosts(doc *goquery.Document) []PostRecord {
	set := newPostSet()
	doc.Find(postLinkSelector).Each(func(_ int, link *goquery.Selection) {
		u := e.urls.Canonicalize(link.AttrOr("href", ""))
		set.add(PostRecord{
			URL: u,
			ID:  PostID(u),
			Title: firstNonEmpty(
				strings.TrimSpace(link.AttrOr("title", "")),
				cleanText(link.Text()),
				UntitledPost,
			),
			Source: SourceGenericLink,
		})
	})
	return set.records
}

// scanPosts works on the raw markup, so no element context is available and
// every title is UntitledPost.
func (e *Extractor) scanPosts(doc *goquery.Document) []PostRecord {
	set := newPostSet()
	for _, m := range postHrefPattern.FindAllStringSubmatch(rawMarkup(doc), -1) {
		u := e.urls.Canonicalize(html.UnescapeString(m[1]))
		set.add(PostRecord{
			URL:    u,
			ID:     PostID(u),
			Title:  UntitledPost,
			Source: SourceFallbackScan,
		})
	}
	return set.records
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
