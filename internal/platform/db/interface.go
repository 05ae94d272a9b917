package db

import (
	"context"
	"database/sql"
	"time"
)

// Database is the broker-agnostic relational access surface every backend
// (MySQL today) implements. Querier is embedded so a *MySQL value can be
// passed anywhere a plain Querier is expected.
type Database interface {
	Querier
	Transaction(ctx context.Context, fn func(tx Transaction) error) error
	BeginTx(ctx context.Context, opts *TxOptions) (Transaction, error)
	Prepare(ctx context.Context, query string) (Stmt, error)
	Ping(ctx context.Context) error
	Close() error
	Stats() Stats
}

// Transaction is a Querier scoped to one database transaction.
type Transaction interface {
	Querier
	Prepare(ctx context.Context, query string) (Stmt, error)
	Commit() error
	Rollback() error
}

// Row is the result of a QueryRow call.
type Row interface {
	Scan(dest ...interface{}) error
}

// Rows is the result of a Query call.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
	Columns() ([]string, error)
	ColumnTypes() ([]ColumnType, error)
	NextResultSet() bool
}

// Result is the outcome of an Exec call.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Stmt is a prepared statement.
type Stmt interface {
	Exec(ctx context.Context, args ...interface{}) (Result, error)
	Query(ctx context.Context, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, args ...interface{}) Row
	Close() error
}

// ColumnType describes one result column.
type ColumnType interface {
	Name() string
	DatabaseTypeName() string
	Length() (int64, bool)
	Nullable() (bool, bool)
	DecimalSize() (int64, int64, bool)
	ScanType() interface{}
}

// TxOptions mirrors sql.TxOptions so callers don't import database/sql.
type TxOptions struct {
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

// ConvertTxOptions converts our TxOptions into the stdlib equivalent, or nil
// when opts is nil (stdlib default isolation).
func ConvertTxOptions(opts *TxOptions) *sql.TxOptions {
	if opts == nil {
		return nil
	}
	return &sql.TxOptions{
		Isolation: opts.Isolation,
		ReadOnly:  opts.ReadOnly,
	}
}

// Stats mirrors sql.DBStats.
type Stats struct {
	OpenConnections int
	InUse           int
	Idle            int
	WaitCount       int64
	WaitDuration    time.Duration
}

// ConvertSQLStats converts stdlib connection pool stats into our Stats type.
func ConvertSQLStats(s sql.DBStats) Stats {
	return Stats{
		OpenConnections: s.OpenConnections,
		InUse:           s.InUse,
		Idle:            s.Idle,
		WaitCount:       s.WaitCount,
		WaitDuration:    s.WaitDuration,
	}
}
