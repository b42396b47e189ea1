package query

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/pgexec/postgres-mcp/pkg/errors"
)

// fakeRows implements pgx.Rows over in-memory values.
type fakeRows struct {
	fields []pgconn.FieldDescription
	values [][]any
	tag    pgconn.CommandTag
	err    error

	pos    int
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return r.tag }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return r.fields }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return errors.New("not implemented")
}

func (r *fakeRows) Values() ([]any, error) {
	return r.values[r.pos-1], nil
}

// fakeConn implements Conn and records the statements it saw.
type fakeConn struct {
	rows     *fakeRows
	queryErr error
	pingErr  error
	closed   bool

	statements []string
}

func (c *fakeConn) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	c.statements = append(c.statements, sql)
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.rows, nil
}

func (c *fakeConn) Ping(context.Context) error { return c.pingErr }
func (c *fakeConn) IsClosed() bool             { return c.closed }

func (c *fakeConn) Close(context.Context) error {
	c.closed = true
	return nil
}

func connectTo(conns ...*fakeConn) (ConnectFunc, *int) {
	dials := 0
	return func(context.Context) (Conn, error) {
		if dials >= len(conns) {
			return nil, errors.New("no more connections")
		}
		conn := conns[dials]
		dials++
		return conn, nil
	}, &dials
}

func TestExecuteRowSet(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		fields: []pgconn.FieldDescription{{Name: "id"}, {Name: "name"}},
		values: [][]any{
			{int64(1), "alpha"},
			{int64(2), nil},
		},
	}}
	connect, _ := connectTo(conn)
	e := NewWithConnect(connect, nil)

	outcome, err := e.Execute(context.Background(), "SELECT id, name FROM widgets")
	require.NoError(t, err)

	require.NotNil(t, outcome.RowSet)
	assert.Nil(t, outcome.Affected)
	assert.Equal(t, []string{"id", "name"}, outcome.RowSet.Columns)
	assert.Equal(t, [][]string{{"1", "alpha"}, {"2", "NULL"}}, outcome.RowSet.Rows)
	assert.Equal(t, []string{"SELECT id, name FROM widgets"}, conn.statements)
}

func TestExecuteEmptyRowSet(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		fields: []pgconn.FieldDescription{{Name: "id"}},
	}}
	connect, _ := connectTo(conn)
	e := NewWithConnect(connect, nil)

	outcome, err := e.Execute(context.Background(), "SELECT id FROM widgets WHERE false")
	require.NoError(t, err)

	require.NotNil(t, outcome.RowSet)
	assert.Empty(t, outcome.RowSet.Rows)
	assert.Equal(t, []string{"id"}, outcome.RowSet.Columns)
}

func TestExecuteAffected(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{tag: pgconn.NewCommandTag("UPDATE 3")}}
	connect, _ := connectTo(conn)
	e := NewWithConnect(connect, nil)

	outcome, err := e.Execute(context.Background(), "UPDATE widgets SET name = 'x'")
	require.NoError(t, err)

	require.NotNil(t, outcome.Affected)
	assert.Nil(t, outcome.RowSet)
	assert.Equal(t, int64(3), outcome.Affected.Count)
}

func TestExecuteAffectedZero(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{tag: pgconn.NewCommandTag("CREATE TABLE")}}
	connect, _ := connectTo(conn)
	e := NewWithConnect(connect, nil)

	outcome, err := e.Execute(context.Background(), "CREATE TABLE widgets (id int)")
	require.NoError(t, err)

	require.NotNil(t, outcome.Affected)
	assert.Equal(t, int64(0), outcome.Affected.Count)
}

func TestExecuteEngineRejected(t *testing.T) {
	conn := &fakeConn{queryErr: errors.New(`syntax error at or near "SELEC"`)}
	connect, _ := connectTo(conn)
	e := NewWithConnect(connect, nil)

	_, err := e.Execute(context.Background(), "SELEC 1")
	require.Error(t, err)
	assert.True(t, mcperrors.IsKind(err, mcperrors.KindEngineRejected))
	assert.Contains(t, err.Error(), "syntax error")
}

func TestExecuteConnectFailure(t *testing.T) {
	e := NewWithConnect(func(context.Context) (Conn, error) {
		return nil, errors.New("connection refused")
	}, nil)

	_, err := e.Execute(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, mcperrors.IsKind(err, mcperrors.KindConnectionLost))
}

func TestExecuteReusesConnection(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{tag: pgconn.NewCommandTag("SELECT 0")}}
	connect, dials := connectTo(conn, conn)
	e := NewWithConnect(connect, nil)

	_, err := e.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), "SELECT 2")
	require.NoError(t, err)

	assert.Equal(t, 1, *dials)
	assert.Len(t, conn.statements, 2)
}

func TestExecuteReconnectsOnBrokenConnection(t *testing.T) {
	broken := &fakeConn{rows: &fakeRows{tag: pgconn.NewCommandTag("SELECT 0")}}
	fresh := &fakeConn{rows: &fakeRows{tag: pgconn.NewCommandTag("SELECT 0")}}
	connect, dials := connectTo(broken, fresh)
	e := NewWithConnect(connect, nil)

	_, err := e.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)

	// The connection dies between calls; the next call dials once more.
	broken.pingErr = errors.New("connection reset by peer")

	_, err = e.Execute(context.Background(), "SELECT 2")
	require.NoError(t, err)

	assert.Equal(t, 2, *dials)
	assert.True(t, broken.closed)
	assert.Equal(t, []string{"SELECT 2"}, fresh.statements)
}

func TestExecuteReconnectFailureIsConnectionLost(t *testing.T) {
	broken := &fakeConn{rows: &fakeRows{tag: pgconn.NewCommandTag("SELECT 0")}}
	connect, _ := connectTo(broken)
	e := NewWithConnect(connect, nil)

	_, err := e.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)

	broken.pingErr = errors.New("connection reset by peer")

	_, err = e.Execute(context.Background(), "SELECT 2")
	require.Error(t, err)
	assert.True(t, mcperrors.IsKind(err, mcperrors.KindConnectionLost))
}

func TestCloseReleasesConnection(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{tag: pgconn.NewCommandTag("SELECT 0")}}
	connect, _ := connectTo(conn)
	e := NewWithConnect(connect, nil)

	// Close before any call is a no-op.
	require.NoError(t, e.Close(context.Background()))

	_, err := e.Execute(context.Background(), "SELECT 1")
	require.NoError(t, err)

	require.NoError(t, e.Close(context.Background()))
	assert.True(t, conn.closed)
}
