package candidates

import (
	"errors"
	"slices"
	"strings"

	"embed-resolver-go/pkg/types"
)

// ErrNoCandidate is returned when there is nothing to rank.
var ErrNoCandidate = errors.New("no media candidate found")

// Rank returns a sorted copy of cands, best first. Ordering is stable:
// a query string beats none, then .m3u8 beats anything else, then the
// shorter URL wins.
func Rank(cands []types.MediaCandidate) []types.MediaCandidate {
	out := slices.Clone(cands)
	slices.SortStableFunc(out, func(a, b types.MediaCandidate) int {
		if qa, qb := strings.Contains(a.URL, "?"), strings.Contains(b.URL, "?"); qa != qb {
			if qa {
				return -1
			}
			return 1
		}
		if ma, mb := isM3U8(a.URL), isM3U8(b.URL); ma != mb {
			if ma {
				return -1
			}
			return 1
		}
		return len(a.URL) - len(b.URL)
	})
	return out
}

// Best returns the highest ranked URL.
func Best(cands []types.MediaCandidate) (types.MediaCandidate, error) {
	if len(cands) == 0 {
		return types.MediaCandidate{}, ErrNoCandidate
	}
	return Rank(cands)[0], nil
}

func isM3U8(u string) bool {
	return strings.Contains(strings.ToLower(u), ".m3u8")
}
