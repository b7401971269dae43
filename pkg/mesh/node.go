package mesh

import (
	"github.com/google/uuid"
)

// Node is the catalog record of a provisioned mesh node.
//
// A Node owns ElementCount consecutive unicast Addresses starting at
// PrimaryUnicast, one per element.
type Node struct {
	UUID           uuid.UUID `cbor:"1,keyasint"`
	Name           string    `cbor:"2,keyasint,omitempty"`
	PrimaryUnicast Address   `cbor:"3,keyasint"`
	ElementCount   uint8     `cbor:"4,keyasint"`
	DeviceKey      []byte    `cbor:"5,keyasint,omitempty"`
}

// Check errors if the Node is not a valid catalog record.
func (self Node) Check() error {
	if uuid.Nil == self.UUID {
		return newError("node has nil UUID")
	}
	if 0 == self.ElementCount {
		return newError("node %s has no element", self.UUID)
	}
	rng := AddressRange{Low: self.PrimaryUnicast, High: self.LastUnicast()}
	err := rng.Check()
	if nil != err {
		return wrapError(err, "node %s element addresses are invalid", self.UUID)
	}
	return nil
}

// LastUnicast returns the unicast Address of the last Node element.
func (self Node) LastUnicast() Address {
	if 0 == self.ElementCount {
		return self.PrimaryUnicast
	}
	return self.PrimaryUnicast + Address(self.ElementCount) - 1
}

// Elements returns the unicast Address of every Node element.
func (self Node) Elements() []Address {
	rv := make([]Address, 0, self.ElementCount)
	for i := uint8(0); i < self.ElementCount; i++ {
		rv = append(rv, self.PrimaryUnicast+Address(i))
	}
	return rv
}

// Network is the mesh topology catalog consumed by the provisioning layer.
//
// Implementations own the set of provisioned Nodes plus the local provisioner
// identity, the provisioning layer only queries it and never mutates it during
// a handshake.
type Network interface {
	// HasLocalProvisioner reports whether a local provisioner identity with an
	// allocated unicast AddressRange is available.
	HasLocalProvisioner() bool

	// NextFreeUnicast returns the lowest Address of the local provisioner
	// allocation starting a run of count Addresses assigned to no known Node.
	// The bool flag is false if no such run exists.
	NextFreeUnicast(count uint8) (Address, bool)

	// RangeIsFree reports whether the count Addresses starting at addr collide
	// with no known Node element.
	RangeIsFree(addr Address, count uint8) bool

	// RangeIsAllocated reports whether the count Addresses starting at addr all
	// fall inside the local provisioner allocation.
	RangeIsAllocated(addr Address, count uint8) bool
}
