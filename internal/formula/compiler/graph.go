package compiler

import (
	"sort"

	"github.com/sheetflow/sheetflow/internal/formula/ast"
)

// references extracts the set of column names a formula depends on.
// constant reports whether the node is a pure literal.
func references(n *ast.Node) (refs []string, constant bool) {
	if n == nil {
		return nil, true
	}
	switch n.Kind {
	case ast.KindNumber, ast.KindText, ast.KindLogical:
		return nil, true
	case ast.KindCell, ast.KindReference:
		if n.Column == "" {
			return nil, false
		}
		return []string{n.Column}, false
	case ast.KindCellRange:
		return append([]string(nil), n.Columns...), false
	case ast.KindFunction:
		var out []string
		for _, a := range n.Arguments {
			r, _ := references(a)
			out = append(out, r...)
		}
		return out, false
	case ast.KindBinary:
		l, _ := references(n.Left)
		r, _ := references(n.Right)
		return append(l, r...), false
	case ast.KindUnary:
		r, _ := references(n.Operand)
		return r, false
	}
	return nil, false
}

// buildGraph constructs the column dependency graph: an edge col -> ref for
// every declared column the formula references. Constants, reference-free
// formulas, and formulas whose single reference is undeclared become level-0
// vertices with no out-edges. Edges into undeclared columns are dropped.
func buildGraph(cols map[string]*ast.Node) map[string][]string {
	edges := make(map[string][]string, len(cols))
	for name, node := range cols {
		edges[name] = nil
		refs, constant := references(node)
		refs = dedupe(refs)
		if constant || len(refs) == 0 {
			continue
		}
		if len(refs) == 1 {
			if _, declared := cols[refs[0]]; !declared {
				continue
			}
		}
		for _, ref := range refs {
			if ref == name {
				continue // self-loops forbidden
			}
			if _, declared := cols[ref]; declared {
				edges[name] = append(edges[name], ref)
			}
		}
	}
	return edges
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// hasCycle runs a three-color DFS over the edge map.
func hasCycle(edges map[string][]string) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(edges))
	var visit func(v string) bool
	visit = func(v string) bool {
		color[v] = gray
		for _, w := range edges[v] {
			switch color[w] {
			case gray:
				return true
			case white:
				if visit(w) {
					return true
				}
			}
		}
		color[v] = black
		return false
	}
	for v := range edges {
		if color[v] == white {
			if visit(v) {
				return true
			}
		}
	}
	return false
}

// assignLevels computes the level of every vertex. A leaf is level 0; an
// inner vertex sums (1 + level(successor)) over its successors. Summing,
// rather than taking the max, keeps independent sub-trees on distinct
// levels and is relied on by the golden DDL ordering.
func assignLevels(edges map[string][]string) map[string]int {
	memo := make(map[string]int, len(edges))
	var level func(v string) int
	level = func(v string) int {
		if l, ok := memo[v]; ok {
			return l
		}
		total := 0
		for _, w := range edges[v] {
			total += 1 + level(w)
		}
		memo[v] = total
		return total
	}
	for v := range edges {
		level(v)
	}
	return memo
}
