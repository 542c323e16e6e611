// Package ast defines the spreadsheet formula AST consumed by the column
// compiler. The external formula parser emits these nodes as JSON; the
// compiler never tokenizes formulas itself.
package ast

import "encoding/json"

// Kind tags the closed set of node variants.
type Kind string

const (
	KindNumber    Kind = "number"
	KindText      Kind = "text"
	KindLogical   Kind = "logical"
	KindCell      Kind = "cell"
	KindCellRange Kind = "cell-range"
	KindReference Kind = "reference-node"
	KindFunction  Kind = "function"
	KindBinary    Kind = "binary-expression"
	KindUnary     Kind = "unary-expression"
)

// Node is a tagged union over the formula node kinds. Only the fields of
// the tagged variant are populated; leaves carry no children.
type Node struct {
	Kind Kind `json:"kind"`

	// number, text, logical
	Value any `json:"value,omitempty"`

	// cell, reference-node
	Key     string `json:"key,omitempty"`
	RefType string `json:"ref_type,omitempty"`
	// Column is the mapped column name pre-resolved by the parser.
	Column string `json:"column,omitempty"`

	// cell-range
	Start *Node `json:"start,omitempty"`
	End   *Node `json:"end,omitempty"`
	// Columns holds the mapped column names covered by the range.
	Columns []string `json:"columns,omitempty"`

	// reference-node
	SheetName string `json:"sheet_name,omitempty"`

	// function
	Name      string  `json:"name,omitempty"`
	Arguments []*Node `json:"arguments,omitempty"`

	// binary-expression, unary-expression
	Operator string `json:"operator,omitempty"`
	Left     *Node  `json:"left,omitempty"`
	Right    *Node  `json:"right,omitempty"`
	Operand  *Node  `json:"operand,omitempty"`
}

// NumberValue returns the numeric payload of a number node.
func (n *Node) NumberValue() (float64, bool) {
	switch v := n.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

// TextValue returns the string payload of a text node.
func (n *Node) TextValue() (string, bool) {
	s, ok := n.Value.(string)
	return s, ok
}

// LogicalValue returns the boolean payload of a logical node.
func (n *Node) LogicalValue() (bool, bool) {
	b, ok := n.Value.(bool)
	return b, ok
}

// Constructors used by callers and tests.

func Number(v float64) *Node { return &Node{Kind: KindNumber, Value: v} }
func Text(s string) *Node    { return &Node{Kind: KindText, Value: s} }
func Logical(b bool) *Node   { return &Node{Kind: KindLogical, Value: b} }

// Cell builds a cell node; column is the mapped column name ("" when the
// parser could not resolve the key).
func Cell(key, column string) *Node {
	return &Node{Kind: KindCell, Key: key, Column: column, RefType: "relative"}
}

// Range builds a cell-range node over pre-resolved column names.
func Range(start, end *Node, columns ...string) *Node {
	return &Node{Kind: KindCellRange, Start: start, End: end, Columns: columns}
}

// Reference builds a cross-sheet reference node.
func Reference(sheet, key, column string) *Node {
	return &Node{Kind: KindReference, SheetName: sheet, Key: key, Column: column, RefType: "relative"}
}

func Function(name string, args ...*Node) *Node {
	return &Node{Kind: KindFunction, Name: name, Arguments: args}
}

func Binary(op string, left, right *Node) *Node {
	return &Node{Kind: KindBinary, Operator: op, Left: left, Right: right}
}

func Unary(op string, operand *Node) *Node {
	return &Node{Kind: KindUnary, Operator: op, Operand: operand}
}
