package devserver

import (
	"errors"
	"fmt"
	"strings"
)

// Sibling order is kept as lowercase base36 strings compared lexicographically.
const rankDigits = "0123456789abcdefghijklmnopqrstuvwxyz"

var errNoRoom = errors.New("no rank fits between bounds")

func rankValue(c byte) (int, error) {
	if i := strings.IndexByte(rankDigits, c); i >= 0 {
		return i, nil
	}
	return 0, fmt.Errorf("invalid rank character %q", c)
}

func normRank(r string) string { return strings.ToLower(strings.TrimSpace(r)) }

// rankBetween returns a rank strictly between lo and hi. Empty bounds are open.
func rankBetween(lo, hi string) (string, error) {
	lo, hi = normRank(lo), normRank(hi)
	if lo != "" && hi != "" && lo >= hi {
		return "", fmt.Errorf("rank bounds out of order: %q >= %q", lo, hi)
	}
	top := len(rankDigits) - 1
	n := len(lo)
	if len(hi) > n {
		n = len(hi)
	}

	var prefix []byte
	for i := 0; i <= n; i++ {
		a, b := 0, top
		if i < len(lo) {
			v, err := rankValue(lo[i])
			if err != nil {
				return "", err
			}
			a = v
		}
		if i < len(hi) {
			v, err := rankValue(hi[i])
			if err != nil {
				return "", err
			}
			b = v
		}
		switch {
		case a == b:
			prefix = append(prefix, rankDigits[a])
			continue
		case b-a > 1:
			prefix = append(prefix, rankDigits[a+(b-a)/2])
		default:
			// Adjacent digits: any extension of lo still sorts below hi.
			prefix = append([]byte(lo), '0')
		}
		r := string(prefix)
		if (lo != "" && r <= lo) || (hi != "" && r >= hi) {
			return "", errNoRoom
		}
		return r, nil
	}
	return "", errNoRoom
}

// uniqueRank returns a rank between lo and hi that is not in taken.
func uniqueRank(taken map[string]bool, lo, hi string) (string, error) {
	cur := normRank(lo)
	for i := 0; i < 64; i++ {
		r, err := rankBetween(cur, hi)
		if err != nil {
			return "", err
		}
		if !taken[r] {
			return r, nil
		}
		cur = r
	}
	return "", errNoRoom
}

// placeRanks returns the rank updates that make sibs sort in the given order once
// sibs[moved] takes its new place. Only the moved node is re-ranked when its new
// neighbours leave room; otherwise the smallest window around it with usable outer
// bounds is re-ranked.
func placeRanks(sibs []Node, moved int) (map[string]string, error) {
	if moved < 0 || moved >= len(sibs) {
		return nil, fmt.Errorf("moved index %d outside %d siblings", moved, len(sibs))
	}
	for size := 1; size <= len(sibs); size++ {
		for lo := moved - size + 1; lo <= moved; lo++ {
			hi := lo + size - 1
			if lo < 0 || hi >= len(sibs) {
				continue
			}
			if out, err := rankWindow(sibs, lo, hi); err == nil {
				return out, nil
			}
		}
	}
	return nil, errNoRoom
}

func rankWindow(sibs []Node, lo, hi int) (map[string]string, error) {
	lower, upper := "", ""
	if lo > 0 {
		lower = normRank(sibs[lo-1].Rank)
	}
	if hi+1 < len(sibs) {
		upper = normRank(sibs[hi+1].Rank)
	}
	if lower != "" && upper != "" && lower >= upper {
		return nil, errNoRoom
	}
	taken := map[string]bool{}
	for i, n := range sibs {
		if i < lo || i > hi {
			taken[normRank(n.Rank)] = true
		}
	}
	out := make(map[string]string, hi-lo+1)
	cur := lower
	for i := lo; i <= hi; i++ {
		r, err := uniqueRank(taken, cur, upper)
		if err != nil {
			return nil, err
		}
		taken[r] = true
		out[sibs[i].ID] = r
		cur = r
	}
	return out, nil
}
