package netdb

import (
	"errors"
	"path"
	"testing"

	"github.com/google/uuid"

	"code.btmesh.org/golang/pkg/mesh"
)

var testAllocation = mesh.AddressRange{Low: 0x0010, High: 0x002F}

func newStore(t *testing.T) *Store {
	t.Helper()
	dbPath := path.Join(t.TempDir(), "net.db")
	store, err := New(dbPath, testAllocation)
	if nil != err {
		t.Fatalf("failed New, got error %v", err)
	}
	return store
}

func newNode(fill byte, addr mesh.Address, count uint8) mesh.Node {
	raw := make([]byte, 16)
	for i := range raw {
		raw[i] = fill
	}
	id, _ := uuid.FromBytes(raw)
	return mesh.Node{UUID: id, PrimaryUnicast: addr, ElementCount: count}
}

func TestNew(t *testing.T) {
	newStore(t)
}

func TestNewRejectsInvalidAllocation(t *testing.T) {
	dbPath := path.Join(t.TempDir(), "net.db")
	_, err := New(dbPath, mesh.AddressRange{Low: 0x0100, High: 0x0001})
	if nil == err {
		t.Error("New accepted a reversed allocation")
	}
}

func TestSaveLoadNode(t *testing.T) {
	store := newStore(t)

	node := newNode(0x01, 0x0010, 3)
	node.Name = "sensor"
	node.DeviceKey = []byte{0xAA, 0xBB}
	err := store.SaveNode(node)
	if nil != err {
		t.Fatalf("failed SaveNode, got error %v", err)
	}

	loaded := mesh.Node{}
	found, err := store.LoadNode(node.UUID, &loaded)
	if nil != err {
		t.Fatalf("failed LoadNode, got error %v", err)
	}
	if !found {
		t.Fatal("failed LoadNode control, node not found")
	}
	if loaded.PrimaryUnicast != node.PrimaryUnicast || loaded.ElementCount != node.ElementCount || loaded.Name != node.Name {
		t.Errorf("failed loaded node control, %+v != %+v", loaded, node)
	}

	count := store.NodeCount()
	if 1 != count {
		t.Errorf("failed NodeCount control, %d != 1", count)
	}
}

func TestSaveNodeRejectsCollision(t *testing.T) {
	store := newStore(t)

	err := store.SaveNode(newNode(0x01, 0x0010, 3))
	if nil != err {
		t.Fatalf("failed SaveNode, got error %v", err)
	}

	// second node elements straddle the first node range
	err = store.SaveNode(newNode(0x02, 0x0012, 2))
	if nil == err {
		t.Fatal("SaveNode accepted colliding element addresses")
	}
	if !errors.Is(err, ErrAddressInUse) {
		t.Errorf("failed error flag control, got %v", err)
	}

	// re-saving the first node under its own addresses is allowed
	update := newNode(0x01, 0x0010, 3)
	update.Name = "renamed"
	err = store.SaveNode(update)
	if nil != err {
		t.Errorf("failed re-saving node, got error %v", err)
	}
	count := store.NodeCount()
	if 1 != count {
		t.Errorf("failed NodeCount control, %d != 1", count)
	}
}

func TestRemoveNode(t *testing.T) {
	store := newStore(t)

	node := newNode(0x03, 0x0020, 1)
	err := store.SaveNode(node)
	if nil != err {
		t.Fatalf("failed SaveNode, got error %v", err)
	}

	removed, err := store.RemoveNode(node.UUID)
	if nil != err {
		t.Fatalf("failed RemoveNode, got error %v", err)
	}
	if !removed {
		t.Error("failed RemoveNode control, node not removed")
	}

	removed, err = store.RemoveNode(node.UUID)
	if nil != err {
		t.Fatalf("failed second RemoveNode, got error %v", err)
	}
	if removed {
		t.Error("failed RemoveNode control, absent node reported removed")
	}

	found, err := store.LoadNode(node.UUID, &mesh.Node{})
	if nil != err {
		t.Fatalf("failed LoadNode, got error %v", err)
	}
	if found {
		t.Error("failed LoadNode control, removed node still loadable")
	}
}

func TestNextFreeUnicast(t *testing.T) {
	store := newStore(t)

	// empty catalog, run starts at the allocation Low
	addr, ok := store.NextFreeUnicast(4)
	if !ok || 0x0010 != addr {
		t.Fatalf("failed NextFreeUnicast control, got %s ok=%v", addr, ok)
	}

	if err := store.SaveNode(newNode(0x01, 0x0010, 4)); nil != err {
		t.Fatalf("failed SaveNode, got error %v", err)
	}
	if err := store.SaveNode(newNode(0x02, 0x0016, 2)); nil != err {
		t.Fatalf("failed SaveNode, got error %v", err)
	}

	// 0x0014-0x0015 gap fits 2 elements
	addr, ok = store.NextFreeUnicast(2)
	if !ok || 0x0014 != addr {
		t.Errorf("failed gap NextFreeUnicast control, got %s ok=%v", addr, ok)
	}

	// 3 elements do not fit the gap, run lands after the second node
	addr, ok = store.NextFreeUnicast(3)
	if !ok || 0x0018 != addr {
		t.Errorf("failed post-gap NextFreeUnicast control, got %s ok=%v", addr, ok)
	}

	// the allocation can not hold a run larger than itself
	_, ok = store.NextFreeUnicast(64)
	if ok {
		t.Error("failed exhaustion control, oversized run reported available")
	}
}

func TestRangeQueries(t *testing.T) {
	store := newStore(t)

	if err := store.SaveNode(newNode(0x01, 0x0010, 4)); nil != err {
		t.Fatalf("failed SaveNode, got error %v", err)
	}

	if store.RangeIsFree(0x0012, 2) {
		t.Error("failed RangeIsFree control, occupied range reported free")
	}
	if !store.RangeIsFree(0x0014, 4) {
		t.Error("failed RangeIsFree control, free range reported occupied")
	}

	if !store.RangeIsAllocated(0x0014, 4) {
		t.Error("failed RangeIsAllocated control, allocated range rejected")
	}
	if store.RangeIsAllocated(0x002F, 2) {
		t.Error("failed RangeIsAllocated control, range past High accepted")
	}

	if !store.HasLocalProvisioner() {
		t.Error("failed HasLocalProvisioner control")
	}
}
