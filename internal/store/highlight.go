package store

import (
	"sort"
	"strings"

	"github.com/user/webanalysis-engine/internal/entity"
)

// computeHighlights locates, for each edge observed on sourcePage, the
// first byte offset of the edge's URL inside body. Offsets are bytes, not
// characters. Overlapping matches are left-biased: the earlier-starting
// match wins and later overlapping ones are dropped. Edges not textually
// present are omitted.
func computeHighlights(body string, edges []entity.EdgeRecord, sourcePage string) []entity.HighlightedLink {
	var candidates []entity.HighlightedLink
	for _, e := range edges {
		if e.ParentURL != sourcePage {
			continue
		}
		idx := strings.Index(body, e.URL)
		if idx < 0 {
			continue
		}
		candidates = append(candidates, entity.HighlightedLink{
			URL:        e.URL,
			Start:      idx,
			End:        idx + len(e.URL),
			Type:       highlightType(e.Status),
			StatusCode: e.StatusCode,
			Status:     e.Status,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Start < candidates[j].Start
	})

	out := candidates[:0]
	prevEnd := -1
	for _, h := range candidates {
		if h.Start < prevEnd {
			continue
		}
		out = append(out, h)
		prevEnd = h.End
	}
	return out
}

func highlightType(s entity.LinkStatus) entity.HighlightType {
	switch s {
	case entity.StatusBroken:
		return entity.HighlightBroken
	case entity.StatusValid:
		return entity.HighlightWorking
	default:
		return entity.HighlightOther
	}
}
