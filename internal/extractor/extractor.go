// Package extractor discovers typed, deduplicated, canonicalized links in
// an HTML body relative to a base URL.
package extractor

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/webanalysis-engine/internal/entity"
)

// onclickURLPattern is a conservative match for URL-shaped substrings in
// inline script/handler text.
var onclickURLPattern = regexp.MustCompile(`https?://[^\s'"<>)]+`)

// Link is one discovered hyperlink, prior to dedup-by-canonical-URL.
type Link struct {
	URL  string // canonicalized absolute URL
	Type entity.LinkType
}

// Extract walks the parsed document for anchors, resource tags, and
// dynamic-URL-bearing attributes, resolves them against base, classifies
// each by category, and returns the deduplicated set surviving toggles.
// Links are gathered source by source (anchor-like tags, then resource
// tags, then dynamic sources) and keep document order only within each
// source; a URL found by several sources takes the type of the first.
func Extract(doc *goquery.Document, base *url.URL, toggles entity.LinkToggles) []Link {
	seedHost := registrableHost(base.Hostname())

	seen := make(map[string]struct{})
	var out []Link

	add := func(raw string, tagType entity.LinkType) {
		abs, ok := resolve(base, raw)
		if !ok {
			return
		}
		canon, ok := Canonicalize(abs)
		if !ok {
			return
		}
		linkType := tagType
		if registrableHost(hostOf(canon)) != seedHost {
			linkType = entity.LinkExternal
		}
		if !toggleAllows(toggles, linkType) {
			return
		}
		if _, dup := seen[canon]; dup {
			return
		}
		seen[canon] = struct{}{}
		out = append(out, Link{URL: canon, Type: linkType})
	}

	doc.Find("a[href], link[href]:not([rel=stylesheet]), area[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			add(href, entity.LinkStaticHTML)
		}
	})

	doc.Find("img[src], script[src], source[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			add(src, entity.LinkResource)
		}
	})
	doc.Find("link[rel=stylesheet][href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			add(href, entity.LinkResource)
		}
	})

	doc.Find("[onclick]").Each(func(_ int, s *goquery.Selection) {
		onclick, _ := s.Attr("onclick")
		for _, m := range onclickURLPattern.FindAllString(onclick, -1) {
			add(m, entity.LinkDynamicJS)
		}
	})
	doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		for _, m := range onclickURLPattern.FindAllString(s.Text(), -1) {
			add(m, entity.LinkDynamicJS)
		}
	})
	doc.Find("[data-url]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("data-url"); ok {
			add(v, entity.LinkDynamicJS)
		}
	})
	doc.Find("[data-href]").Each(func(_ int, s *goquery.Selection) {
		if v, ok := s.Attr("data-href"); ok {
			add(v, entity.LinkDynamicJS)
		}
	})

	return out
}

func toggleAllows(t entity.LinkToggles, lt entity.LinkType) bool {
	switch lt {
	case entity.LinkStaticHTML:
		return t.Static
	case entity.LinkDynamicJS:
		return t.Dynamic
	case entity.LinkResource:
		return t.Resource
	case entity.LinkExternal:
		return t.External
	default:
		return false
	}
}

func resolve(base *url.URL, raw string) (*url.URL, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "javascript:") || strings.HasPrefix(raw, "mailto:") || strings.HasPrefix(raw, "tel:") {
		return nil, false
	}
	rel, err := url.Parse(raw)
	if err != nil {
		return nil, false
	}
	abs := base.ResolveReference(rel)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return nil, false
	}
	return abs, true
}

// Canonicalize normalizes u per the dedup key: scheme+host lowercased,
// default ports stripped, fragment removed, path normalized, query
// preserved byte-for-byte.
func Canonicalize(u *url.URL) (string, bool) {
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}

	cleanPath := path.Clean("/" + u.EscapedPath())
	if cleanPath == "" {
		cleanPath = "/"
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	if port != "" {
		b.WriteString(":")
		b.WriteString(port)
	}
	b.WriteString(cleanPath)
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	return b.String(), true
}

func hostOf(canon string) string {
	u, err := url.Parse(canon)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// registrableHost is a conservative approximation of the registrable
// domain: strip a single leading "www." label. A full public-suffix-list
// lookup is out of scope for this engine.
func registrableHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
