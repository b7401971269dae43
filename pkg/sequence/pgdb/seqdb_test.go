package pgdb

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"

	"code.btmesh.org/golang/pkg/sequence"
)

// Tests run against the database referenced by the BTMESH_TEST_DSN environment
// variable, eg.
// "host=localhost port=25432 database=meshdb user=postgres password=notasecret sslmode=disable search_path=btmesh_test,public"

func newConn(ctx context.Context, t *testing.T) *pgx.Conn {
	t.Helper()
	dsn := os.Getenv("BTMESH_TEST_DSN")
	if "" == dsn {
		t.Skip("BTMESH_TEST_DSN is not set")
	}
	pgconn, err := pgx.Connect(ctx, dsn)
	if nil != err {
		t.Fatalf("failed pgx.Connect, got error %v", err)
	}
	t.Cleanup(func() { pgconn.Close(context.Background()) })
	return pgconn
}

// newTxStore migrates the schema and returns a SeqStore bound to a transaction
// that is rolled back when the test completes, keeping the database pristine.
func newTxStore(ctx context.Context, t *testing.T) *SeqStore {
	t.Helper()
	pgconn := newConn(ctx, t)

	err := SeqStoreMigrate(pgconn, "btmesh_test")
	if nil != err {
		t.Fatalf("failed SeqStoreMigrate, got error %v", err)
	}

	tx, err := pgconn.Begin(ctx)
	if nil != err {
		t.Fatalf("failed pgconn.Begin, got error %v", err)
	}
	t.Cleanup(func() { tx.Rollback(context.Background()) })

	return &SeqStore{DB: tx, Ctx: ctx}
}

func TestPing(t *testing.T) {
	ctx := context.Background() // t.Context() gets in the way when controlling transaction
	pgconn := newConn(ctx, t)
	err := pgconn.Ping(ctx)
	if nil != err {
		t.Fatalf("failed connection test, got error %v", err)
	}
}

func TestGetSetRemove(t *testing.T) {
	ctx := context.Background()
	store := newTxStore(ctx, t)

	_, found := store.GetUint("seq.0001")
	if found {
		t.Error("failed empty GetUint control")
	}

	err := store.SetUint("seq.0001", 41)
	if nil != err {
		t.Fatalf("failed SetUint, got error %v", err)
	}
	err = store.SetUint("seq.0001", 42)
	if nil != err {
		t.Fatalf("failed SetUint upsert, got error %v", err)
	}

	value, found := store.GetUint("seq.0001")
	if !found || 42 != value {
		t.Errorf("failed GetUint control, %d found=%v", value, found)
	}

	err = store.Remove("seq.0001")
	if nil != err {
		t.Fatalf("failed Remove, got error %v", err)
	}
	_, found = store.GetUint("seq.0001")
	if found {
		t.Error("failed removed GetUint control")
	}
}

func TestSetUintRange(t *testing.T) {
	ctx := context.Background()
	store := newTxStore(ctx, t)

	// the full 56 bits SeqAuth range round-trips
	want := sequence.SeqAuthMask
	err := store.SetUint("seqAuth.last.0101", want)
	if nil != err {
		t.Fatalf("failed SetUint, got error %v", err)
	}
	value, found := store.GetUint("seqAuth.last.0101")
	if !found || want != value {
		t.Errorf("failed range control, %X found=%v", value, found)
	}

	// wider values are refused instead of being silently truncated
	err = store.SetUint("seqAuth.last.0101", want+1)
	if nil == err {
		t.Error("SetUint accepted a value overflowing 56 bits")
	}
}

func TestAuthorityOverSeqStore(t *testing.T) {
	ctx := context.Background()
	store := newTxStore(ctx, t)

	auth, err := sequence.NewAuthority(store, nil)
	if nil != err {
		t.Fatalf("failed NewAuthority, got error %v", err)
	}

	for want := uint32(0); want < 3; want++ {
		got := auth.NextSequenceNumber(0x0001)
		if got != want {
			t.Errorf("failed NextSequenceNumber control, %d != %d", got, want)
		}
	}

	if !auth.Accept(100, 0x0202, false) {
		t.Error("failed Accept control, first value rejected")
	}
	if auth.Accept(50, 0x0202, false) {
		t.Error("failed Accept control, stale value accepted")
	}
}
