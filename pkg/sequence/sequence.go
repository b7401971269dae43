package sequence

import (
	"fmt"
	"sync"

	"code.btmesh.org/golang/internal/observability"
	"code.btmesh.org/golang/pkg/mesh"
)

const (
	// SeqMask keeps the low 24 bits of a sequence number.
	SeqMask = uint32(0x00FF_FFFF)

	// SeqAuthMask keeps the low 56 bits of a SeqAuth value.
	SeqAuthMask = uint64(0x00FF_FFFF_FFFF_FFFF)
)

// SeqAuth combines a 32 bits IV Index and a 24 bits sequence number into the
// 56 bits value that makes a mesh message unique for its source element.
func SeqAuth(ivIndex uint32, seq uint32) uint64 {
	return uint64(ivIndex)<<24 | uint64(seq&SeqMask)
}

// Authority owns the persisted message counters of a mesh identity.
//
// Every operation is total over the persisted integer state, an absent counter
// reads as 0 / none and Store failures degrade to those defaults (they are
// reported through the configured Observability). A single inner lock
// serializes every read-modify-write, concurrent senders can therefore never
// be issued the same sequence number and concurrent receptions can never
// corrupt the last/previous SeqAuth ordering.
type Authority struct {
	mut   sync.Mutex
	store Store
	obs   *observability.Observability
}

// NewAuthority returns an Authority persisting counters in store.
// obs may be nil. It errors if store is nil.
func NewAuthority(store Store, obs *observability.Observability) (*Authority, error) {
	if nil == store {
		return nil, newError("nil Store")
	}
	return &Authority{store: store, obs: obs}, nil
}

// NextSequenceNumber returns the sequence number to use for the next message
// originated by the addr element and advances the persisted counter by 1.
// The first call for an element returns 0.
func (self *Authority) NextSequenceNumber(addr mesh.Address) uint32 {
	self.mut.Lock()
	defer self.mut.Unlock()

	key := seqKey(addr)
	cur, _ := self.store.GetUint(key)
	err := self.store.SetUint(key, cur+1)
	if nil != err {
		self.obs.Log().Error("failed persisting sequence counter", "addr", addr.String(), "error", err)
	}

	return uint32(cur) & SeqMask
}

// ResetSequenceNumbers restarts the outgoing counter of every node element at 0.
// Used when the network IV Index advances, sequence numbers restart under the
// new IV Index epoch.
func (self *Authority) ResetSequenceNumbers(node mesh.Node) {
	self.mut.Lock()
	defer self.mut.Unlock()

	for _, addr := range node.Elements() {
		err := self.store.Remove(seqKey(addr))
		if nil != err {
			self.obs.Log().Error("failed resetting sequence counter", "addr", addr.String(), "error", err)
		}
	}
}

// LastSeqAuthValue returns the most recently accepted SeqAuth received from the
// addr element. The bool flag is false if no value was ever accepted.
func (self *Authority) LastSeqAuthValue(addr mesh.Address) (uint64, bool) {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.store.GetUint(lastKey(addr))
}

// StoreLastSeqAuthValue replaces the most recently accepted SeqAuth of the
// addr element.
func (self *Authority) StoreLastSeqAuthValue(value uint64, addr mesh.Address) {
	self.mut.Lock()
	defer self.mut.Unlock()
	self.setSeqAuth(lastKey(addr), value)
}

// PreviousSeqAuthValue returns the second most recently accepted SeqAuth
// received from the addr element. The bool flag is false if no such value is
// tracked.
func (self *Authority) PreviousSeqAuthValue(addr mesh.Address) (uint64, bool) {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.store.GetUint(prevKey(addr))
}

// StorePreviousSeqAuthValue replaces the second most recently accepted SeqAuth
// of the addr element.
func (self *Authority) StorePreviousSeqAuthValue(value uint64, addr mesh.Address) {
	self.mut.Lock()
	defer self.mut.Unlock()
	self.setSeqAuth(prevKey(addr), value)
}

// RemoveSeqAuthValues clears the last & previous SeqAuth tracked for every
// given element address. Used when a node or element leaves the network, its
// history becomes meaningless.
func (self *Authority) RemoveSeqAuthValues(addrs ...mesh.Address) {
	self.mut.Lock()
	defer self.mut.Unlock()

	for _, addr := range addrs {
		for _, key := range []string{lastKey(addr), prevKey(addr)} {
			err := self.store.Remove(key)
			if nil != err {
				self.obs.Log().Error("failed removing SeqAuth value", "addr", addr.String(), "error", err)
			}
		}
	}
}

// Accept applies the replay-acceptance policy to the SeqAuth value received
// from the addr element and reports whether the message must be processed.
//
// value is accepted iff it is greater than the last accepted SeqAuth, or iff
// the transport signals a retransmission and value equals the previous accepted
// SeqAuth. On acceptance of a greater value the last SeqAuth shifts to
// previous and value becomes the new last, a tolerated duplicate mutates
// nothing.
func (self *Authority) Accept(value uint64, addr mesh.Address, retransmission bool) bool {
	self.mut.Lock()
	defer self.mut.Unlock()

	value &= SeqAuthMask

	last, tracked := self.store.GetUint(lastKey(addr))
	if !tracked || value > last {
		if tracked {
			self.setSeqAuth(prevKey(addr), last)
		}
		self.setSeqAuth(lastKey(addr), value)
		return true
	}

	if retransmission {
		prev, ok := self.store.GetUint(prevKey(addr))
		if ok && value == prev {
			return true
		}
	}

	return false
}

// setSeqAuth persists a SeqAuth value, callers hold the Authority lock.
func (self *Authority) setSeqAuth(key string, value uint64) {
	err := self.store.SetUint(key, value&SeqAuthMask)
	if nil != err {
		self.obs.Log().Error("failed persisting SeqAuth value", "key", key, "error", err)
	}
}

// Store keys, one counter per element address plus last/previous replay marks.

func seqKey(addr mesh.Address) string {
	return fmt.Sprintf("seq.%04X", uint16(addr))
}

func lastKey(addr mesh.Address) string {
	return fmt.Sprintf("seqAuth.last.%04X", uint16(addr))
}

func prevKey(addr mesh.Address) string {
	return fmt.Sprintf("seqAuth.prev.%04X", uint16(addr))
}
