package boltdb

import (
	"path"
	"testing"

	"code.btmesh.org/golang/pkg/sequence"
)

func newStore(t *testing.T) sequence.Store {
	t.Helper()
	dbPath := path.Join(t.TempDir(), "seq.db")
	store, err := New(dbPath)
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
	return store
}

func TestNew(t *testing.T) {
	newStore(t)
}

func TestGetSetRemove(t *testing.T) {
	store := newStore(t)

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
		t.Fatalf("failed SetUint overwrite, got error %v", err)
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

	// removing an absent key is not an error
	err = store.Remove("seq.0001")
	if nil != err {
		t.Errorf("failed absent Remove, got error %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "seq.db")
	store, err := New(dbPath)
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}

	// a 56 bits SeqAuth value survives intact
	want := sequence.SeqAuth(0xCAFE_F00D, 0x12_3456)
	err = store.SetUint("seqAuth.last.0101", want)
	if nil != err {
		t.Fatalf("failed SetUint, got error %v", err)
	}

	reopened, err := New(dbPath)
	if nil != err {
		t.Fatalf("failed reopening store, got error %v", err)
	}
	value, found := reopened.GetUint("seqAuth.last.0101")
	if !found || want != value {
		t.Errorf("failed persistence control, %X found=%v", value, found)
	}
}

func TestAuthorityOverBoltStore(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "seq.db")
	store, err := New(dbPath)
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
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

	// issuance continues after a restart, never reusing a number
	store2, err := New(dbPath)
	if nil != err {
		t.Fatalf("failed reopening store, got error %v", err)
	}
	auth2, err := sequence.NewAuthority(store2, nil)
	if nil != err {
		t.Fatalf("failed NewAuthority, got error %v", err)
	}
	got := auth2.NextSequenceNumber(0x0001)
	if 3 != got {
		t.Errorf("failed restart continuation control, %d != 3", got)
	}
}
