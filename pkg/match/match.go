// Package match scores title similarity and recognizes episode markers in
// embed labels.
package match

import (
	"strconv"
	"strings"

	"github.com/grafana/regexp"
	levenshtein "github.com/ka-weihe/fast-levenshtein"
	"github.com/samber/lo"
)

// DefaultThreshold is the similarity below which a search result is not
// considered the requested title.
const DefaultThreshold = 0.4

var (
	nonAlnumRe = regexp.MustCompile(`[^a-z0-9\s]`)
	spaceRe    = regexp.MustCompile(`\s+`)

	seasonRe  = regexp.MustCompile(`(?i)\bS(?:eason)?\s*0*(\d{1,2})`)
	episodeRe = regexp.MustCompile(`(?i)(?:\bEP?|\bEpisode|\b\d{1,2}x)\s*[-–:.]?\s*0*(\d{1,3})\b`)
)

// Normalize lowercases s, drops punctuation and collapses whitespace.
func Normalize(s string) string {
	s = nonAlnumRe.ReplaceAllString(strings.ToLower(s), "")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// Similarity returns a score in [0, 1]. Equal titles score 1, one title
// contained in the other 0.9, otherwise the Jaccard index of words longer
// than two characters. Titles made only of short words are compared by
// edit distance.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return 0.9
	}

	wa, wb := words(na), words(nb)
	if len(wa) == 0 || len(wb) == 0 {
		longest := max(len(na), len(nb))
		return 1 - float64(levenshtein.Distance(na, nb))/float64(longest)
	}

	inter := lo.Intersect(wa, wb)
	union := lo.Union(wa, wb)
	return float64(len(inter)) / float64(len(union))
}

// Best returns the index of the candidate most similar to title, or -1 when
// none reaches threshold.
func Best(title string, candidates []string, threshold float64) int {
	best, bestScore := -1, threshold
	for i, c := range candidates {
		if s := Similarity(title, c); s >= bestScore && (best < 0 || s > bestScore) {
			best, bestScore = i, s
		}
	}
	return best
}

func words(s string) []string {
	return lo.Uniq(lo.Filter(strings.Fields(s), func(w string, _ int) bool { return len(w) > 2 }))
}

// Episode reports whether label refers to the given season and episode.
// Zero means "any". A label naming a different season or episode does not
// match; a label without an episode marker does not match a specific episode.
func Episode(label string, season, episode int) bool {
	if season > 0 {
		if m := seasonRe.FindStringSubmatch(label); m != nil {
			if n, _ := strconv.Atoi(m[1]); n != season {
				return false
			}
		}
	}
	if episode <= 0 {
		return true
	}

	rest := label
	if loc := seasonRe.FindStringIndex(label); loc != nil {
		rest = label[loc[1]:]
	}
	for _, m := range episodeRe.FindAllStringSubmatch(rest, -1) {
		if n, _ := strconv.Atoi(m[1]); n == episode {
			return true
		}
	}
	return false
}
