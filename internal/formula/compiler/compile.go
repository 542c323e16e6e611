package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sheetflow/sheetflow/internal/formula/ast"
)

// Dtype declares a column's SQL type and optional column constraints.
type Dtype struct {
	Type  string `json:"type"`
	Extra string `json:"extra,omitempty"`
}

// Statement is one emitted DDL statement and the columns it declares.
type Statement struct {
	SQL     string   `json:"sql"`
	Columns []string `json:"columns"`
}

// Result is the compiler output: statements grouped by level, ascending.
// Level 0 holds the CREATE TABLE; levels >= 1 hold generated-column ALTERs.
type Result struct {
	Content map[int][]Statement `json:"content"`
	Error   string              `json:"error,omitempty"`
}

// ErrCyclic is the error string reported for cyclic reference graphs.
const ErrCyclic = "cyclic dependencies"

// Compile builds the dependency graph over cols, rejects cycles, assigns
// levels and emits the DDL. dtypes supplies the SQL type per column; columns
// without a dtype default to TEXT.
func Compile(cols map[string]*ast.Node, dtypes map[string]Dtype, tableName string) Result {
	edges := buildGraph(cols)
	if hasCycle(edges) {
		return Result{Content: map[int][]Statement{}, Error: ErrCyclic}
	}
	levels := assignLevels(edges)
	cellColumns := collectCellMap(cols)

	byLevel := make(map[int][]string)
	for name, lvl := range levels {
		byLevel[lvl] = append(byLevel[lvl], name)
	}
	for _, names := range byLevel {
		sort.Strings(names)
	}

	content := make(map[int][]Statement)
	var emitErrs []string

	content[0] = []Statement{createTable(tableName, byLevel[0], dtypes)}

	for _, lvl := range ascendingLevels(byLevel) {
		if lvl == 0 {
			continue
		}
		for _, name := range byLevel[lvl] {
			node := EmitNode(cols[name], cellColumns)
			if node.Error != "" {
				emitErrs = append(emitErrs, fmt.Sprintf("%s: %s", name, node.Error))
				continue
			}
			content[lvl] = append(content[lvl], alterTable(tableName, name, dtypes[name], node.SQL))
		}
	}

	return Result{Content: content, Error: strings.Join(emitErrs, "; ")}
}

// collectCellMap walks every AST gathering the parser's pre-resolved cell
// key to column name mapping.
func collectCellMap(cols map[string]*ast.Node) map[string]string {
	out := make(map[string]string)
	var walk func(n *ast.Node)
	walk = func(n *ast.Node) {
		if n == nil {
			return
		}
		if (n.Kind == ast.KindCell || n.Kind == ast.KindReference) && n.Key != "" && n.Column != "" {
			out[n.Key] = n.Column
		}
		walk(n.Start)
		walk(n.End)
		walk(n.Left)
		walk(n.Right)
		walk(n.Operand)
		for _, a := range n.Arguments {
			walk(a)
		}
	}
	for _, n := range cols {
		walk(n)
	}
	return out
}

func ascendingLevels[T any](byLevel map[int]T) []int {
	out := make([]int, 0, len(byLevel))
	for lvl := range byLevel {
		out = append(out, lvl)
	}
	sort.Ints(out)
	return out
}

// createTable emits the level-0 statement. The id SERIAL PRIMARY KEY prefix
// is added iff no level-0 column declares PRIMARY KEY itself.
func createTable(table string, columns []string, dtypes map[string]Dtype) Statement {
	hasPK := false
	for _, c := range columns {
		if strings.Contains(strings.ToLower(dtypes[c].Extra), "primary key") {
			hasPK = true
			break
		}
	}
	parts := make([]string, 0, len(columns)+1)
	declared := make([]string, 0, len(columns)+1)
	if !hasPK {
		parts = append(parts, "id SERIAL PRIMARY KEY")
		declared = append(declared, "id")
	}
	for _, c := range columns {
		parts = append(parts, columnDef(c, dtypes[c]))
		declared = append(declared, c)
	}
	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s);", table, strings.Join(parts, ", "))
	return Statement{SQL: sql, Columns: declared}
}

func alterTable(table, column string, dt Dtype, expr string) Statement {
	typ := dt.Type
	if typ == "" {
		typ = "TEXT"
	}
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s GENERATED ALWAYS AS (%s) STORED", table, column, typ, expr)
	if dt.Extra != "" {
		sql += " " + dt.Extra
	}
	sql += ";"
	return Statement{SQL: sql, Columns: []string{column}}
}

func columnDef(name string, dt Dtype) string {
	typ := dt.Type
	if typ == "" {
		typ = "TEXT"
	}
	def := name + " " + typ
	if dt.Extra != "" {
		def += " " + dt.Extra
	}
	return def
}
