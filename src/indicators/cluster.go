package indicators

import (
	"math"
	"sort"
)

// SymbolPair is an unordered pair stored with A < B.
type SymbolPair struct {
	A string
	B string
}

func NewSymbolPair(x, y string) SymbolPair {
	if y < x {
		x, y = y, x
	}

	return SymbolPair{A: x, B: y}
}

func (p SymbolPair) String() string {
	return p.A + "-" + p.B
}

// ClusterByCorrelation connects every pair with |corr| >= threshold and returns the
// connected components. Ids follow the sorted order of each component's first symbol,
// so the same input always yields the same ids.
func ClusterByCorrelation(symbols []string, corr map[SymbolPair]float64, threshold float64) (map[string]int, [][]string) {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)

	parent := make(map[string]string, len(sorted))
	for _, s := range sorted {
		parent[s] = s
	}

	var find func(string) string
	find = func(s string) string {
		if parent[s] != s {
			parent[s] = find(parent[s])
		}
		return parent[s]
	}

	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}

		if rb < ra {
			ra, rb = rb, ra
		}
		parent[rb] = ra
	}

	for pair, c := range corr {
		if _, ok := parent[pair.A]; !ok {
			continue
		}
		if _, ok := parent[pair.B]; !ok {
			continue
		}

		if math.Abs(c) >= threshold {
			union(pair.A, pair.B)
		}
	}

	ids := make(map[string]int, len(sorted))
	rootIDs := make(map[string]int)
	var groups [][]string
	for _, s := range sorted {
		root := find(s)
		id, ok := rootIDs[root]
		if !ok {
			id = len(groups)
			rootIDs[root] = id
			groups = append(groups, nil)
		}

		ids[s] = id
		groups[id] = append(groups[id], s)
	}

	return ids, groups
}
