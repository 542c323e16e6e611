package compiler

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/sheetflow/sheetflow/internal/formula/ast"
)

type fakeExecer struct {
	stmts []string
	fail  bool
}

func (f *fakeExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if f.fail {
		return pgconn.CommandTag{}, errors.New("exec failed")
	}
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}

func TestMaterializer_AppliesInLevelOrder(t *testing.T) {
	cols, dtypes := happyPathCols()
	res := Compile(cols, dtypes, "t")
	require.Empty(t, res.Error)

	db := &fakeExecer{}
	err := NewMaterializer(db).Apply(context.Background(), res)
	require.NoError(t, err)
	require.Len(t, db.stmts, 3)
	require.Contains(t, db.stmts[0], "CREATE TABLE")
	require.Contains(t, db.stmts[1], "col2")
	require.Contains(t, db.stmts[2], "col3")
}

func TestMaterializer_RefusesErroredResult(t *testing.T) {
	db := &fakeExecer{}
	err := NewMaterializer(db).Apply(context.Background(), Result{Error: ErrCyclic})
	require.Error(t, err)
	require.Empty(t, db.stmts)
}

func TestMaterializer_PropagatesExecError(t *testing.T) {
	res := Compile(map[string]*ast.Node{"a": ast.Number(1)}, nil, "t")
	err := NewMaterializer(&fakeExecer{fail: true}).Apply(context.Background(), res)
	require.Error(t, err)
}
