package graph

import (
	"sort"
	"strings"
	"unicode"

	"github.com/odvcencio/folio/pkg/entry"
)

// Hit is one search result.
type Hit struct {
	Row   *Row
	Score int
}

// searchIndex is an inverted index over folded tokens of each row's
// searchable text. The last query term matches as a prefix.
type searchIndex struct {
	postings map[string]map[*Row]int
	tokens   []string
}

func tokenize(s string) []string {
	return strings.FieldsFunc(entry.Fold(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func newSearchIndex(rows []*Row) *searchIndex {
	idx := &searchIndex{postings: map[string]map[*Row]int{}}
	for _, r := range rows {
		for _, tok := range tokenize(r.SearchableText) {
			p := idx.postings[tok]
			if p == nil {
				p = map[*Row]int{}
				idx.postings[tok] = p
				idx.tokens = append(idx.tokens, tok)
			}
			p[r]++
		}
	}
	sort.Strings(idx.tokens)
	return idx
}

func (idx *searchIndex) prefixed(prefix string) map[*Row]int {
	out := map[*Row]int{}
	i := sort.SearchStrings(idx.tokens, prefix)
	for ; i < len(idx.tokens) && strings.HasPrefix(idx.tokens[i], prefix); i++ {
		for r, n := range idx.postings[idx.tokens[i]] {
			out[r] += n
		}
	}
	return out
}

func (idx *searchIndex) find(terms []string) []Hit {
	var words []string
	for _, t := range terms {
		words = append(words, tokenize(t)...)
	}
	if len(words) == 0 {
		return nil
	}
	var scores map[*Row]int
	for i, w := range words {
		var matched map[*Row]int
		if i == len(words)-1 {
			matched = idx.prefixed(w)
		} else {
			matched = idx.postings[w]
		}
		if scores == nil {
			scores = make(map[*Row]int, len(matched))
			for r, n := range matched {
				scores[r] = n
			}
			continue
		}
		for r := range scores {
			n, ok := matched[r]
			if !ok {
				delete(scores, r)
				continue
			}
			scores[r] += n
		}
	}
	hits := make([]Hit, 0, len(scores))
	for r, n := range scores {
		hits = append(hits, Hit{Row: r, Score: n})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Row.FilePath < hits[j].Row.FilePath
	})
	return hits
}
