package extractor

import (
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/user/webanalysis-engine/internal/entity"
)

func parse(t *testing.T, html string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestExtractStaticLinksDefaultToggles(t *testing.T) {
	html := `<html><body><a href="/x">x</a><a href="/y#frag">y</a><a href="https://other.example/z">z</a></body></html>`
	base, _ := url.Parse("http://a.example/")
	doc := parse(t, html)

	links := Extract(doc, base, entity.DefaultLinkToggles())

	require.Len(t, links, 2)
	require.Equal(t, "http://a.example/x", links[0].URL)
	require.Equal(t, entity.LinkStaticHTML, links[0].Type)
	require.Equal(t, "http://a.example/y", links[1].URL)
}

func TestExtractExternalRequiresToggle(t *testing.T) {
	html := `<html><body><a href="https://other.example/z">z</a></body></html>`
	base, _ := url.Parse("http://a.example/")
	doc := parse(t, html)

	toggles := entity.LinkToggles{Static: true, External: false}
	require.Empty(t, Extract(doc, base, toggles))

	toggles.External = true
	links := Extract(doc, base, toggles)
	require.Len(t, links, 1)
	require.Equal(t, entity.LinkExternal, links[0].Type)
}

func TestExtractDedupesByCanonicalForm(t *testing.T) {
	html := `<html><body><a href="/x">1</a><a href="/x/">2</a><a href="HTTP://A.EXAMPLE:80/x">3</a></body></html>`
	base, _ := url.Parse("http://a.example/")
	doc := parse(t, html)

	links := Extract(doc, base, entity.LinkToggles{Static: true})
	require.Len(t, links, 1)
}

func TestExtractResourceAndDynamic(t *testing.T) {
	html := `<html><body>
		<img src="/logo.png">
		<div onclick="go('https://a.example/click')"></div>
		<div data-url="/dyn"></div>
	</body></html>`
	base, _ := url.Parse("http://a.example/")
	doc := parse(t, html)

	toggles := entity.LinkToggles{Static: true, Dynamic: true, Resource: true}
	links := Extract(doc, base, toggles)

	types := map[entity.LinkType]int{}
	for _, l := range links {
		types[l.Type]++
	}
	require.Equal(t, 1, types[entity.LinkResource])
	require.Equal(t, 2, types[entity.LinkDynamicJS])
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	u, _ := url.Parse("HTTP://Example.com:80/a/../b/?q=1#frag")
	once, ok := Canonicalize(u)
	require.True(t, ok)

	u2, _ := url.Parse(once)
	twice, ok := Canonicalize(u2)
	require.True(t, ok)

	require.Equal(t, once, twice)
	require.Equal(t, "http://example.com/b?q=1", once)
}

func TestMalformedURLDroppedSilently(t *testing.T) {
	html := `<html><body><a href="http://%zz">bad</a><a href="/ok">ok</a></body></html>`
	base, _ := url.Parse("http://a.example/")
	doc := parse(t, html)

	links := Extract(doc, base, entity.LinkToggles{Static: true})
	require.Len(t, links, 1)
	require.Equal(t, "http://a.example/ok", links[0].URL)
}

func TestExtractStylesheetIsResourceNotStatic(t *testing.T) {
	html := `<html><head><link rel="stylesheet" href="/app.css"><link rel="canonical" href="/canon"></head></html>`
	base, _ := url.Parse("http://a.example/")
	doc := parse(t, html)

	links := Extract(doc, base, entity.LinkToggles{Static: true, Resource: true})

	byURL := map[string]entity.LinkType{}
	for _, l := range links {
		byURL[l.URL] = l.Type
	}
	require.Equal(t, entity.LinkResource, byURL["http://a.example/app.css"])
	require.Equal(t, entity.LinkStaticHTML, byURL["http://a.example/canon"])
}
