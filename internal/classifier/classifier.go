// Package classifier computes per-page structural metadata from a parsed
// HTML body: title, word count, chrome-region presence, page type, and a
// deterministic structure fingerprint.
package classifier

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/user/webanalysis-engine/internal/entity"
)

const blankWordThreshold = 50

// ariaRoles maps an ARIA role value to the chrome region it signals.
var ariaRoles = map[string]string{
	"banner":      "header",
	"contentinfo": "footer",
	"navigation":  "nav",
}

// Result is the classifier's output for one fetched page.
type Result struct {
	Title           string
	WordCount       int
	HasHeader       bool
	HasFooter       bool
	HasNav          bool
	Type            entity.PageType
	StructureDigest string
	Issues          []string
}

// Classify derives structural metadata from the parsed document and the
// fetch outcome that produced it. rawBody is the original HTML, needed to
// distinguish an empty redirect response from a parsed-but-empty tree.
func Classify(doc *goquery.Document, rawBody string, statusCode int) Result {
	if statusCode >= 400 && statusCode < 600 {
		return Result{Type: entity.PageError}
	}
	if statusCode >= 300 && statusCode < 400 && strings.TrimSpace(rawBody) == "" {
		return Result{Type: entity.PageRedirect}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())

	text := strippedText(doc)
	wordCount := len(strings.Fields(text))

	hasHeader := hasRegion(doc, "header", "banner")
	hasFooter := hasRegion(doc, "footer", "contentinfo")
	hasNav := hasRegion(doc, "nav", "navigation")

	pageType := entity.PageContent
	if wordCount < blankWordThreshold && (hasHeader || hasFooter || hasNav) {
		pageType = entity.PageBlank
	}

	return Result{
		Title:           title,
		WordCount:       wordCount,
		HasHeader:       hasHeader,
		HasFooter:       hasFooter,
		HasNav:          hasNav,
		Type:            pageType,
		StructureDigest: structureDigest(doc),
		Issues:          structureIssues(doc, title, wordCount, pageType),
	}
}

// strippedText returns the text content with script and style elements
// removed. Comment nodes carry no text in the parsed tree, so they are
// already excluded.
func strippedText(doc *goquery.Document) string {
	clone := doc.Clone()
	clone.Find("script, style").Remove()
	return clone.Text()
}

func hasRegion(doc *goquery.Document, tag, role string) bool {
	if doc.Find(tag).Length() > 0 {
		return true
	}
	found := false
	doc.Find("[role]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, _ := s.Attr("role"); strings.EqualFold(v, role) {
			found = true
			return false
		}
		return true
	})
	return found
}

// structureDigest fingerprints the tag skeleton: element names in
// document order with all text and attribute content stripped, so
// equivalent markup produces equal digests.
func structureDigest(doc *goquery.Document) string {
	var skeleton strings.Builder
	for _, root := range doc.Nodes {
		walkSkeleton(root, &skeleton)
	}
	sum := sha256.Sum256([]byte(skeleton.String()))
	return hex.EncodeToString(sum[:])
}

func walkSkeleton(n *html.Node, out *strings.Builder) {
	if n.Type == html.ElementNode {
		out.WriteString(n.Data)
		out.WriteByte('/')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkSkeleton(c, out)
	}
}

// structureIssues flags advisory content-quality problems on content
// pages. These never feed back into the page type.
func structureIssues(doc *goquery.Document, title string, wordCount int, pageType entity.PageType) []string {
	if pageType != entity.PageContent {
		return nil
	}
	var issues []string
	if wordCount < 100 {
		issues = append(issues, "very short content")
	}
	if title == "" {
		issues = append(issues, "missing title")
	} else if len(title) > 60 {
		issues = append(issues, "overlong title")
	}
	headings := doc.Find("h1, h2, h3, h4, h5, h6").Length()
	paragraphs := doc.Find("p").Length()
	if headings < 2 || paragraphs < 3 {
		issues = append(issues, "weak heading/paragraph structure")
	}
	return issues
}
