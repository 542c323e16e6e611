// Package compiler turns per-column formula ASTs into level-ordered DDL:
// one CREATE TABLE for constant columns and one generated-column ALTER per
// derived column, in dependency order.
package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sheetflow/sheetflow/internal/formula/ast"
)

// DDLNode mirrors the AST shape augmented with the emitted SQL fragment and
// a per-node error. Immutable after construction.
type DDLNode struct {
	Kind ast.Kind
	SQL  string
	// Columns is populated for cell-range nodes, which are consumed by the
	// enclosing function rather than emitted as SQL.
	Columns []string
	Error   string
}

type emitFunc func(n *ast.Node, columns map[string]string) DDLNode

var emitters map[ast.Kind]emitFunc

func init() {
	// Built in init to avoid an initialization cycle through the
	// expression emitters.
	emitters = map[ast.Kind]emitFunc{
		ast.KindNumber:    emitNumber,
		ast.KindText:      emitText,
		ast.KindLogical:   emitLogical,
		ast.KindCell:      emitCell,
		ast.KindCellRange: emitCellRange,
		ast.KindReference: emitReference,
		ast.KindFunction:  emitFunction,
		ast.KindBinary:    emitBinary,
		ast.KindUnary:     emitUnary,
	}
}

// EmitNode dispatches on the node kind. columns maps cell keys (e.g. "A1")
// to declared column names; unmapped keys yield an error node.
func EmitNode(n *ast.Node, columns map[string]string) DDLNode {
	if n == nil {
		return DDLNode{Error: "nil node"}
	}
	emit, ok := emitters[n.Kind]
	if !ok {
		return emitUnknown(n)
	}
	return emit(n, columns)
}

func emitUnknown(n *ast.Node) DDLNode {
	return DDLNode{Kind: n.Kind, Error: fmt.Sprintf("unknown node kind %q", n.Kind)}
}

func emitNumber(n *ast.Node, _ map[string]string) DDLNode {
	v, ok := n.NumberValue()
	if !ok {
		return DDLNode{Kind: n.Kind, Error: "number node without numeric value"}
	}
	return DDLNode{Kind: n.Kind, SQL: strconv.FormatFloat(v, 'f', -1, 64)}
}

func emitLogical(n *ast.Node, _ map[string]string) DDLNode {
	b, ok := n.LogicalValue()
	if !ok {
		return DDLNode{Kind: n.Kind, Error: "logical node without boolean value"}
	}
	if b {
		return DDLNode{Kind: n.Kind, SQL: "TRUE"}
	}
	return DDLNode{Kind: n.Kind, SQL: "FALSE"}
}

func emitText(n *ast.Node, _ map[string]string) DDLNode {
	s, ok := n.TextValue()
	if !ok {
		return DDLNode{Kind: n.Kind, Error: "text node without string value"}
	}
	return DDLNode{Kind: n.Kind, SQL: "'" + strings.ReplaceAll(s, "'", "''") + "'"}
}

func emitCell(n *ast.Node, columns map[string]string) DDLNode {
	col, ok := columns[n.Key]
	if !ok || col == "" {
		return DDLNode{Kind: n.Kind, Error: fmt.Sprintf("cell %q is not mapped to a column", n.Key)}
	}
	return DDLNode{Kind: n.Kind, SQL: col}
}

func emitReference(n *ast.Node, columns map[string]string) DDLNode {
	col, ok := columns[n.Key]
	if !ok || col == "" {
		return DDLNode{Kind: n.Kind, Error: fmt.Sprintf("reference %q is not mapped to a column", n.Key)}
	}
	return DDLNode{Kind: n.Kind, SQL: n.SheetName + "." + col}
}

// emitCellRange resolves the mapped column list. The range itself never
// carries SQL; the enclosing function expands it.
func emitCellRange(n *ast.Node, columns map[string]string) DDLNode {
	if len(n.Columns) > 0 {
		for _, c := range n.Columns {
			if c == "" {
				return DDLNode{Kind: n.Kind, Error: "range contains an unmapped cell"}
			}
		}
		return DDLNode{Kind: n.Kind, Columns: n.Columns}
	}
	if n.Start == nil || n.End == nil {
		return DDLNode{Kind: n.Kind, Error: "range without start or end"}
	}
	keys, err := rangeKeys(n.Start.Key, n.End.Key)
	if err != nil {
		return DDLNode{Kind: n.Kind, Error: err.Error()}
	}
	cols := make([]string, 0, len(keys))
	for _, k := range keys {
		col, ok := columns[k]
		if !ok || col == "" {
			return DDLNode{Kind: n.Kind, Error: fmt.Sprintf("cell %q in range is not mapped to a column", k)}
		}
		cols = append(cols, col)
	}
	return DDLNode{Kind: n.Kind, Columns: cols}
}

func emitBinary(n *ast.Node, columns map[string]string) DDLNode {
	left := EmitNode(n.Left, columns)
	right := EmitNode(n.Right, columns)
	out := DDLNode{
		Kind:  n.Kind,
		SQL:   fmt.Sprintf("(%s) %s (%s)", left.SQL, sqlOperator(n.Operator), right.SQL),
		Error: joinErrors(left.Error, right.Error),
	}
	if out.Error != "" {
		out.SQL = ""
	}
	return out
}

func emitUnary(n *ast.Node, columns map[string]string) DDLNode {
	operand := EmitNode(n.Operand, columns)
	out := DDLNode{
		Kind:  n.Kind,
		SQL:   fmt.Sprintf("%s(%s)", sqlOperator(n.Operator), operand.SQL),
		Error: operand.Error,
	}
	if out.Error != "" {
		out.SQL = ""
	}
	return out
}

// sqlOperator maps Excel operators onto their SQL spellings.
func sqlOperator(op string) string {
	switch op {
	case "&":
		return "||"
	case "==":
		return "="
	default:
		return op
	}
}

func joinErrors(errs ...string) string {
	var parts []string
	for _, e := range errs {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, "; ")
}

// rangeKeys enumerates cell keys between start and end. The range must run
// along a single row or a single column of the source sheet.
func rangeKeys(start, end string) ([]string, error) {
	sc, sr, err := splitKey(start)
	if err != nil {
		return nil, err
	}
	ec, er, err := splitKey(end)
	if err != nil {
		return nil, err
	}
	switch {
	case sc == ec: // same column, vary row
		if er < sr {
			sr, er = er, sr
		}
		keys := make([]string, 0, er-sr+1)
		for r := sr; r <= er; r++ {
			keys = append(keys, fmt.Sprintf("%s%d", sc, r))
		}
		return keys, nil
	case sr == er: // same row, vary column
		si, ei := columnIndex(sc), columnIndex(ec)
		if ei < si {
			si, ei = ei, si
		}
		keys := make([]string, 0, ei-si+1)
		for i := si; i <= ei; i++ {
			keys = append(keys, fmt.Sprintf("%s%d", columnName(i), sr))
		}
		return keys, nil
	}
	return nil, fmt.Errorf("range %s:%s spans neither a single row nor a single column", start, end)
}

func splitKey(key string) (letters string, row int, err error) {
	i := 0
	for i < len(key) && key[i] >= 'A' && key[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(key) {
		return "", 0, fmt.Errorf("malformed cell key %q", key)
	}
	row, err = strconv.Atoi(key[i:])
	if err != nil {
		return "", 0, fmt.Errorf("malformed cell key %q", key)
	}
	return key[:i], row, nil
}

func columnIndex(letters string) int {
	n := 0
	for _, c := range letters {
		n = n*26 + int(c-'A') + 1
	}
	return n
}

func columnName(idx int) string {
	var b []byte
	for idx > 0 {
		idx--
		b = append([]byte{byte('A' + idx%26)}, b...)
		idx /= 26
	}
	return string(b)
}
