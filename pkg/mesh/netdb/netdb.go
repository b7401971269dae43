// Package netdb provides a persistent mesh.Network catalog that keeps provisioned
// Node records in a single file boltdb database.
package netdb

import (
	"crypto"
	"encoding/binary"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
	_ "golang.org/x/crypto/blake2s"

	"code.btmesh.org/golang/pkg/mesh"
)

const (
	connectTimeout = 5 * time.Second
	hashAlgo       = crypto.BLAKE2s_256
)

// Store is a file backed mesh.Network implementation.
//
// Node records are cbor serialized and keyed by primary unicast Address in the
// nodeTbl bucket. The uuidIdx bucket maps hashed device UUIDs to nodeTbl keys,
// UUIDs are hashed to keep device identities out of index keys.
type Store struct {
	dbpath     string
	allocation mesh.AddressRange
}

// New returns a Store that persists Nodes in the dbpath file.
// allocation is the unicast range owned by the local provisioner.
// It errors if allocation is invalid or if the database schema can not be created.
func New(dbpath string, allocation mesh.AddressRange) (*Store, error) {
	err := allocation.Check()
	if nil != err {
		return nil, wrapError(err, "invalid provisioner allocation")
	}

	db, err := bolt.Open(dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return nil, wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		for _, bucketname := range []string{"nodeTbl", "uuidIdx"} {
			_, err = tx.CreateBucketIfNotExists([]byte(bucketname))
			if nil != err {
				return wrapError(err, "failed %s bucket creation", bucketname)
			}
		}

		return nil
	})
	if nil != err {
		return nil, wrapError(err, "failed db initialization")
	}

	return &Store{dbpath: dbpath, allocation: allocation}, nil
}

// SaveNode saves node in the Store.
// It errors if node is invalid, if its element range collides with another Node
// or if the database is not reachable.
func (self *Store) SaveNode(node mesh.Node) error {
	err := node.Check()
	if nil != err {
		return wrapError(err, "node is invalid")
	}

	srznode, err := cbor.Marshal(node)
	if nil != err {
		return wrapError(err, "failed cbor.Marshal(node)")
	}

	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return wrapError(err, "failed connecting to database")
	}
	defer db.Close()

	err = db.Update(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx)
		if nil != err {
			return wrapError(err, "failed loadSchema")
		}

		// a node may be re-saved under its own addresses, any other collision
		// is a catalog corruption
		conflict := sch.findOverlap(node.PrimaryUnicast, node.ElementCount, node.UUID)
		if mesh.UnassignedAddress != conflict {
			return wrapError(
				ErrAddressInUse,
				"elements of node %s collide with node at %s", node.UUID, conflict,
			)
		}

		// drop the previous record if the node moved address
		prevKey := sch.uuidIdx.Get(hashUUID(node.UUID))
		nodeKey := byteAddr(node.PrimaryUnicast)
		if nil != prevKey && string(prevKey) != string(nodeKey) {
			err = sch.nodeTbl.Delete(prevKey)
			if nil != err {
				return wrapError(err, "failed dropping relocated node record")
			}
		}

		err = sch.nodeTbl.Put(nodeKey, srznode)
		if nil != err {
			return wrapError(err, "failed storing node in bucket")
		}

		err = sch.uuidIdx.Put(hashUUID(node.UUID), nodeKey)
		if nil != err {
			return wrapError(err, "failed updating the uuidIdx bucket")
		}

		return nil
	})

	return wrapError(err, "failed db.Update") // nil if err is nil
}

// RemoveNode removes the Node identified by id from the Store.
// It returns true if a Node was effectively removed.
func (self *Store) RemoveNode(id uuid.UUID) (bool, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return false, wrapError(err, "failed connecting to the database")
	}
	defer db.Close()

	var removed bool
	err = db.Update(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx)
		if nil != err {
			return wrapError(err, "failed loading schema")
		}

		idxKey := hashUUID(id)
		nodeKey := sch.uuidIdx.Get(idxKey)
		if nil == nodeKey {
			return nil
		}

		err = sch.nodeTbl.Delete(nodeKey)
		if nil != err {
			return err
		}

		err = sch.uuidIdx.Delete(idxKey)
		if nil != err {
			return err
		}

		removed = true

		return nil
	})

	return removed, wrapError(err, "failed db.Update")
}

// LoadNode loads the Node identified by id into dst.
// It returns true if the Node was found and successfully loaded.
func (self *Store) LoadNode(id uuid.UUID, dst *mesh.Node) (bool, error) {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return false, wrapError(err, "failed connecting to the database")
	}
	defer db.Close()

	var loaded bool
	err = db.View(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx)
		if nil != err {
			return wrapError(err, "failed loading schema")
		}

		nodeKey := sch.uuidIdx.Get(hashUUID(id))
		srznode := sch.nodeTbl.Get(nodeKey)
		if nil == srznode {
			return nil
		}

		err = cbor.Unmarshal(srznode, dst)
		if nil != err {
			return wrapError(err, "failed unmarshaling node")
		}

		loaded = true

		return nil
	})

	return loaded, err
}

// NodeCount returns the number of Nodes in the Store, -1 if the Store is not
// reachable.
func (self *Store) NodeCount() int {
	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return -1
	}
	defer db.Close()

	var count int
	err = db.View(func(tx *bolt.Tx) error {
		nodeTbl := tx.Bucket([]byte("nodeTbl"))
		if nil == nodeTbl {
			return newError("missing nodeTbl bucket")
		}
		count = nodeTbl.Stats().KeyN

		return nil
	})

	if nil == err {
		return count
	}

	return -1
}

// mesh.Network implementation

// HasLocalProvisioner reports whether the Store carries a provisioner allocation.
// A Store always does, the allocation is checked at New time.
func (self *Store) HasLocalProvisioner() bool {
	return nil == self.allocation.Check()
}

// NextFreeUnicast returns the lowest Address of the provisioner allocation
// starting a run of count Addresses assigned to no known Node.
func (self *Store) NextFreeUnicast(count uint8) (mesh.Address, bool) {
	if 0 == count {
		return mesh.UnassignedAddress, false
	}

	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return mesh.UnassignedAddress, false
	}
	defer db.Close()

	var addr mesh.Address
	var found bool
	err = db.View(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx)
		if nil != err {
			return wrapError(err, "failed loading schema")
		}

		// candidate runs start either at the allocation Low or right after a
		// known node, nodeTbl iterates in address order
		candidate := self.allocation.Low
		c := sch.nodeTbl.Cursor()
		for k, v := c.First(); nil != k; k, v = c.Next() {
			node := mesh.Node{}
			err = cbor.Unmarshal(v, &node)
			if nil != err {
				return wrapError(err, "failed unmarshaling node")
			}
			if node.LastUnicast() < candidate {
				continue
			}
			if uint32(node.PrimaryUnicast) >= uint32(candidate)+uint32(count) {
				break // gap before this node fits the run
			}
			candidate = node.LastUnicast() + 1
		}
		if self.allocation.Contains(candidate, count) {
			addr = candidate
			found = true
		}

		return nil
	})
	if nil != err {
		return mesh.UnassignedAddress, false
	}

	return addr, found
}

// RangeIsFree reports whether the count Addresses starting at addr collide with
// no known Node element.
func (self *Store) RangeIsFree(addr mesh.Address, count uint8) bool {
	if 0 == count {
		return false
	}

	db, err := bolt.Open(self.dbpath, 0600, &bolt.Options{Timeout: connectTimeout})
	if nil != err {
		return false
	}
	defer db.Close()

	var free bool
	err = db.View(func(tx *bolt.Tx) error {
		sch, err := loadSchema(tx)
		if nil != err {
			return wrapError(err, "failed loading schema")
		}

		free = mesh.UnassignedAddress == sch.findOverlap(addr, count, uuid.Nil)

		return nil
	})
	if nil != err {
		return false
	}

	return free
}

// RangeIsAllocated reports whether the count Addresses starting at addr all
// fall inside the provisioner allocation.
func (self *Store) RangeIsAllocated(addr mesh.Address, count uint8) bool {
	return self.allocation.Contains(addr, count)
}

var _ mesh.Network = &Store{}

// schema holds Store buckets reference
type schema struct {
	nodeTbl *bolt.Bucket
	uuidIdx *bolt.Bucket
}

func loadSchema(tx *bolt.Tx) (schema, error) {
	rv := schema{
		nodeTbl: tx.Bucket([]byte("nodeTbl")),
		uuidIdx: tx.Bucket([]byte("uuidIdx")),
	}
	var err error
	if nil == rv.nodeTbl || nil == rv.uuidIdx {
		err = newError("1 or more bucket is missing")
	}

	return rv, err
}

// findOverlap returns the primary unicast of the first Node whose elements
// collide with the count Addresses starting at addr, skipping the Node
// identified by ignore. It returns the unassigned Address if no Node collides.
func (self schema) findOverlap(addr mesh.Address, count uint8, ignore uuid.UUID) mesh.Address {
	c := self.nodeTbl.Cursor()
	for k, v := c.First(); nil != k; k, v = c.Next() {
		node := mesh.Node{}
		if nil != cbor.Unmarshal(v, &node) {
			continue
		}
		if ignore != uuid.Nil && ignore == node.UUID {
			continue
		}
		rng := mesh.AddressRange{Low: node.PrimaryUnicast, High: node.LastUnicast()}
		if rng.Overlaps(addr, count) {
			return node.PrimaryUnicast
		}
	}

	return mesh.UnassignedAddress
}

// hashUUID returns the digest used as uuidIdx key.
//
// digest is calculated using the hash function referenced by the hashAlgo constant
func hashUUID(id uuid.UUID) []byte {
	h := hashAlgo.New()
	h.Write(id[:])
	return h.Sum(nil)
}

// byteAddr returns 2 bytes BigEndian encoding of addr
func byteAddr(addr mesh.Address) []byte {
	rv := make([]byte, 2)
	binary.BigEndian.PutUint16(rv, uint16(addr))

	return rv
}
