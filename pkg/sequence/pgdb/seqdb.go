// Package pgdb provides a Postgres backed sequence.Store for provisioner
// gateways that already operate a database.
package pgdb

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"code.btmesh.org/golang/internal/observability"
	"code.btmesh.org/golang/internal/utils"
	"code.btmesh.org/golang/pkg/sequence"
)

// PGDB is implemented by pgx.Tx, pgx.Conn & pgxpool.Pool
// accessing a postgres database through this common interface simplifies testing
type PGDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SeqStore is a sequence.Store keeping counters in a Postgres counter table.
//
// The sequence.Store contract carries no context, SeqStore therefore issues
// its queries under the Ctx it was built with (Background if left nil). The
// Authority on top serializes calls, no transaction is needed around the
// single-row upserts.
type SeqStore struct {
	DB  PGDB
	Ctx context.Context
}

//go:embed seq_store_schema.sql
var schemaScriptTpl string

// SeqStoreMigrate creates the counter table schema.
// The ${schema_owner} role referenced by the script must exist.
func SeqStoreMigrate(pgconn *pgx.Conn, dbschema string) error {

	// render schema creation script
	schemaName := pgx.Identifier{dbschema}.Sanitize()
	schemaOwner := pgx.Identifier{fmt.Sprintf("%s_owner", dbschema)}.Sanitize()
	schemaScript := strings.ReplaceAll(schemaScriptTpl, "${schema_name}", schemaName)
	schemaScript = strings.ReplaceAll(schemaScript, "${schema_owner}", schemaOwner)

	_, err := pgconn.Exec(context.Background(), schemaScript)

	return wrapError(err, "failed db schema initialization") // nil if err is nil...
}

// NewSeqStore returns a SeqStore backed by a connection pool on dsn.
func NewSeqStore(ctx context.Context, dsn string) (*SeqStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if nil != err {
		return nil, wrapError(err, "failed connection pool creation")
	}

	return &SeqStore{DB: pool, Ctx: ctx}, nil
}

// GetUint returns the counter stored under key.
// The flag is false if the key is absent or the database is not reachable.
func (self *SeqStore) GetUint(key string) (uint64, bool) {
	var value int64
	err := self.DB.QueryRow(
		self.ctx(),
		`SELECT value FROM counter WHERE key = $1`,
		key,
	).Scan(&value)
	if nil != err {
		if !errors.Is(err, pgx.ErrNoRows) {
			log := observability.GetObservability(self.ctx()).Log().With("store", "pgdb")
			log.Warn("failed counter read", "key", key, "error", err)
		}
		return 0, false
	}

	return uint64(value), true
}

// SetUint stores value under key, replacing any previous value.
func (self *SeqStore) SetUint(key string, value uint64) error {
	if value > uint64(sequence.SeqAuthMask) {
		return newError("value %d overflows the 56 bits counter range", value)
	}

	_, err := self.DB.Exec(
		self.ctx(),
		`INSERT INTO counter (key, value)
		 VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
		`,
		key, int64(value),
	)

	return wrapError(err, "failed counter upsert") // nil if err is nil
}

// Remove drops the key from the store. Removing an absent key is not an error.
func (self *SeqStore) Remove(key string) error {
	_, err := self.DB.Exec(
		self.ctx(),
		`DELETE FROM counter WHERE key = $1`,
		key,
	)

	return wrapError(err, "failed counter delete") // nil if err is nil
}

func (self *SeqStore) ctx() context.Context {
	if nil != self.Ctx {
		return self.Ctx
	}
	return context.Background()
}

var _ sequence.Store = &SeqStore{}

// errorFlag is a private error type that allows declaring error constants.
type errorFlag string

const (
	// All package errors are wrapping Error
	Error   = errorFlag("sequence/pgdb: error")
	noError = errorFlag("")
)

// Error implements the error interface.
func (self errorFlag) Error() string {
	return string(self)
}

func (self errorFlag) Unwrap() error {
	if Error == self || noError == self {
		return nil
	} else {
		return Error
	}
}

func newError(msg string, args ...any) error {
	return utils.NewError(1, Error, msg, args...)
}

func wrapError(cause error, msg string, args ...any) error {
	return utils.WrapError(cause, 1, Error, msg, args...)
}
