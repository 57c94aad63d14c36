package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selector fallbacks, most specific first.
var (
	titleSelectors     = []string{".post__title", "h1.post-title, h1.post__title", "h1"}
	contentSelectors   = []string{".post__content", ".post-content", ".post__body"}
	dateTextSelectors  = []string{".post__date", ".post-date", ".date"}
	userSelectors      = []string{".post__user-name", ".post__user .fancy-link", ".user-header__name", ".author", `[class*="author"]`}
	usernameSelectors  = []string{`.user-header__name span[itemprop="name"]`, ".user-header__name", ".user-header__info h1"}
	titleSeparator     = "|"
	siteNames          = []string{"kemono", "coomer"}
	quotedNamePattern  = regexp.MustCompile(`Posts of "([^"]+)"`)
	publishedLabelTrim = regexp.MustCompile(`(?i)^published:?\s*`)
)

// Metadata reads the descriptive fields of a rendered post page. Each field
// falls back independently of the others.
func (e *Extractor) Metadata(doc *goquery.Document) Metadata {
	if doc == nil {
		return Metadata{Title: UntitledPost}
	}
	return Metadata{
		Title:     title(doc),
		Content:   content(doc),
		Published: published(doc),
		User:      firstText(doc, userSelectors...),
	}
}

func title(doc *goquery.Document) string {
	if t := firstText(doc, titleSelectors...); t != "" {
		return t
	}
	if t := documentTitleSegment(doc); t != "" {
		return t
	}
	return UntitledPost
}

func content(doc *goquery.Document) string {
	for _, sel := range contentSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		html, err := s.Html()
		if err != nil {
			continue
		}
		if html = strings.TrimSpace(html); html != "" {
			return html
		}
	}
	return ""
}

func published(doc *goquery.Document) string {
	if v := strings.TrimSpace(doc.Find(".post__published time[datetime]").First().AttrOr("datetime", "")); v != "" {
		return v
	}
	if v := cleanText(doc.Find(".post__published").First().Text()); v != "" {
		return publishedLabelTrim.ReplaceAllString(v, "")
	}
	if v := firstText(doc, dateTextSelectors...); v != "" {
		return v
	}
	return cleanText(doc.Find("time").First().Text())
}

// Username names the creator of a profile page. pageURL is only consulted
// when the page itself names nobody.
func (e *Extractor) Username(doc *goquery.Document, pageURL string) string {
	if doc != nil {
		if name := firstText(doc, usernameSelectors...); name != "" {
			return name
		}
		if name := strings.TrimSpace(doc.Find(`meta[name="artist_name"]`).First().AttrOr("content", "")); name != "" {
			return name
		}
		title := cleanText(doc.Find("title").First().Text())
		if m := quotedNamePattern.FindStringSubmatch(title); m != nil {
			return strings.TrimSpace(m[1])
		}
		if name := documentTitleSegment(doc); name != "" && !isSiteName(name) {
			return name
		}
	}
	if id := UserID(pageURL); id != "" {
		return "user_" + id
	}
	return UnknownUser
}

// documentTitleSegment returns the text of <title> before the first
// separator, which is where the page puts its own subject.
func documentTitleSegment(doc *goquery.Document) string {
	title := cleanText(doc.Find("title").First().Text())
	if title == "" {
		return ""
	}
	segment, _, _ := strings.Cut(title, titleSeparator)
	return strings.TrimSpace(segment)
}

func isSiteName(s string) bool {
	s = strings.ToLower(s)
	for _, name := range siteNames {
		if s == name || strings.HasPrefix(s, name+".") {
			return true
		}
	}
	return false
}

// firstText returns the text of the first selector that yields any.
func firstText(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if t := cleanText(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	return ""
}
