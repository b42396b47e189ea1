package query

import (
	"context"

	"github.com/jackc/pgx/v5"

	mcperrors "github.com/pgexec/postgres-mcp/pkg/errors"
	"github.com/pgexec/postgres-mcp/pkg/logging"
)

// Conn is the subset of *pgx.Conn the executor needs. Narrowed so tests can
// substitute a fake connection.
type Conn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	IsClosed() bool
	Close(ctx context.Context) error
}

// ConnectFunc establishes a database connection.
type ConnectFunc func(ctx context.Context) (Conn, error)

// Executor executes SQL statements over a single database connection. The
// connection is created lazily on first use and reused across calls; it has
// exactly one owner and no concurrent access, which the transport's strict
// turn-taking guarantees.
type Executor struct {
	connect ConnectFunc
	conn    Conn
	logger  logging.Logger
}

// New creates an Executor that connects with pgx using the given DSN.
func New(dsn string, logger logging.Logger) *Executor {
	return NewWithConnect(func(ctx context.Context) (Conn, error) {
		return pgx.Connect(ctx, dsn)
	}, logger)
}

// NewWithConnect creates an Executor with a custom connection factory.
func NewWithConnect(connect ConnectFunc, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Executor{connect: connect, logger: logger}
}

// Close releases the connection if one was established.
func (e *Executor) Close(ctx context.Context) error {
	if e.conn == nil {
		return nil
	}
	conn := e.conn
	e.conn = nil
	return conn.Close(ctx)
}

// Execute runs the statement exactly as given — no rewriting,
// parameterization, or dialect translation — and normalizes the result.
// Statements that yield a describable result set produce a RowSet; anything
// else produces an Affected count. Each call is its own implicit
// transaction.
func (e *Executor) Execute(ctx context.Context, sql string) (*Outcome, error) {
	conn, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, sql)
	if err != nil {
		return nil, mcperrors.EngineRejected(err)
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	if len(fds) == 0 {
		// No column metadata: a command, not a query. Drain and report the
		// engine's affected count.
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, mcperrors.EngineRejected(err)
		}
		return &Outcome{Affected: &Affected{Count: rows.CommandTag().RowsAffected()}}, nil
	}

	columns := make([]string, len(fds))
	for i, fd := range fds {
		columns[i] = string(fd.Name)
	}

	var out [][]string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, mcperrors.EngineRejected(err)
		}
		row := make([]string, len(vals))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, mcperrors.EngineRejected(err)
	}

	return &Outcome{RowSet: &RowSet{Columns: columns, Rows: out}}, nil
}

// acquire returns a live connection, dialing lazily on first use. A
// connection found broken at the start of a call gets exactly one reconnect
// attempt before the failure surfaces as ConnectionLost; the next call
// starts the cycle over.
func (e *Executor) acquire(ctx context.Context) (Conn, error) {
	if e.conn != nil && !e.conn.IsClosed() {
		err := e.conn.Ping(ctx)
		if err == nil {
			return e.conn, nil
		}
		e.logger.Warn("database connection broken, reconnecting", logging.ErrorField(err))
		_ = e.conn.Close(ctx)
		e.conn = nil
	}

	e.logger.Info("connecting to database")
	conn, err := e.connect(ctx)
	if err != nil {
		e.logger.Error("database connection failed", logging.ErrorField(err))
		return nil, mcperrors.ConnectionLost(err)
	}

	e.logger.Info("database connection established")
	e.conn = conn
	return conn, nil
}
