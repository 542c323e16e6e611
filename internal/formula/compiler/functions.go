package compiler

import (
	"fmt"
	"strings"

	"github.com/sheetflow/sheetflow/internal/formula/ast"
)

// functionTemplate renders a function call from its already-emitted
// arguments. For each named function the emitted SQL must compute the same
// value as the Excel semantics over the mapped columns.
type functionTemplate func(args []DDLNode) (string, string)

var functionTemplates = map[string]functionTemplate{
	"SUM":         sumTemplate,
	"AVERAGE":     averageTemplate,
	"IF":          ifTemplate,
	"AND":         connectiveTemplate("AND"),
	"OR":          connectiveTemplate("OR"),
	"NOT":         notTemplate,
	"CONCATENATE": concatenateTemplate,
}

func emitFunction(n *ast.Node, columns map[string]string) DDLNode {
	args := make([]DDLNode, 0, len(n.Arguments))
	var errs []string
	for _, a := range n.Arguments {
		d := EmitNode(a, columns)
		if d.Error != "" {
			errs = append(errs, d.Error)
		}
		args = append(args, d)
	}
	if len(errs) > 0 {
		return DDLNode{Kind: n.Kind, Error: strings.Join(errs, "; ")}
	}
	if tmpl, ok := functionTemplates[strings.ToUpper(n.Name)]; ok {
		sql, errMsg := tmpl(args)
		out := DDLNode{Kind: n.Kind, SQL: sql, Error: errMsg}
		if out.Error != "" {
			out.SQL = ""
		}
		return out
	}
	// Unknown functions pass through as a call; forward-compatible, no error.
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, a.SQL)
	}
	return DDLNode{Kind: n.Kind, SQL: fmt.Sprintf("%s(%s)", n.Name, strings.Join(parts, ", "))}
}

// expandOperands flattens range arguments into their column names and keeps
// scalar SQL fragments as-is.
func expandOperands(args []DDLNode) []string {
	var out []string
	for _, a := range args {
		if a.Kind == ast.KindCellRange {
			out = append(out, a.Columns...)
			continue
		}
		out = append(out, a.SQL)
	}
	return out
}

func sumTemplate(args []DDLNode) (string, string) {
	ops := expandOperands(args)
	if len(ops) == 0 {
		return "", "SUM expects at least one argument"
	}
	return strings.Join(ops, " + "), ""
}

func averageTemplate(args []DDLNode) (string, string) {
	ops := expandOperands(args)
	if len(ops) == 0 {
		return "", "AVERAGE expects at least one argument"
	}
	return fmt.Sprintf("(%s) / %d", strings.Join(ops, " + "), len(ops)), ""
}

func ifTemplate(args []DDLNode) (string, string) {
	if len(args) != 3 {
		return "", fmt.Sprintf("IF expects 3 arguments, got %d", len(args))
	}
	return fmt.Sprintf("CASE WHEN %s THEN %s ELSE %s END", args[0].SQL, args[1].SQL, args[2].SQL), ""
}

func connectiveTemplate(op string) functionTemplate {
	return func(args []DDLNode) (string, string) {
		ops := expandOperands(args)
		if len(ops) == 0 {
			return "", op + " expects at least one argument"
		}
		wrapped := make([]string, len(ops))
		for i, o := range ops {
			wrapped[i] = "(" + o + ")"
		}
		return strings.Join(wrapped, " "+op+" "), ""
	}
}

func notTemplate(args []DDLNode) (string, string) {
	if len(args) != 1 {
		return "", fmt.Sprintf("NOT expects 1 argument, got %d", len(args))
	}
	return fmt.Sprintf("NOT (%s)", args[0].SQL), ""
}

func concatenateTemplate(args []DDLNode) (string, string) {
	ops := expandOperands(args)
	if len(ops) == 0 {
		return "", "CONCATENATE expects at least one argument"
	}
	return strings.Join(ops, " || "), ""
}
