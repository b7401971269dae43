package mesh

import (
	"fmt"
)

// Address is a 16 bits mesh network address.
//
// The unicast space covers 0x0001-0x7FFF, each provisioned element owns exactly
// one unicast Address. 0x0000 is the unassigned Address, values with the high
// bit set are virtual or group addresses and never assigned to elements.
type Address uint16

const (
	UnassignedAddress Address = 0x0000
	MinUnicastAddress Address = 0x0001
	MaxUnicastAddress Address = 0x7FFF
)

// IsUnicast reports whether the Address belongs to the unicast space.
func (self Address) IsUnicast() bool {
	return self >= MinUnicastAddress && self <= MaxUnicastAddress
}

// String implements fmt.Stringer, Addresses are conventionally printed as 4
// uppercase hex digits.
func (self Address) String() string {
	return fmt.Sprintf("%04X", uint16(self))
}

// AddressRange is a contiguous run of unicast Addresses, Low & High inclusive.
type AddressRange struct {
	Low  Address
	High Address
}

// Check errors if the AddressRange is not a well formed unicast range.
func (self AddressRange) Check() error {
	if !self.Low.IsUnicast() || !self.High.IsUnicast() {
		return newError("range %s-%s leaves the unicast space", self.Low, self.High)
	}
	if self.Low > self.High {
		return newError("range bounds are reversed, %s > %s", self.Low, self.High)
	}
	return nil
}

// Contains reports whether the count Addresses starting at addr all fall inside
// the AddressRange.
func (self AddressRange) Contains(addr Address, count uint8) bool {
	if 0 == count {
		return false
	}
	last := uint32(addr) + uint32(count) - 1
	return addr >= self.Low && last <= uint32(self.High)
}

// Overlaps reports whether the count Addresses starting at addr collide with
// the AddressRange.
func (self AddressRange) Overlaps(addr Address, count uint8) bool {
	if 0 == count {
		return false
	}
	last := uint32(addr) + uint32(count) - 1
	return uint32(self.Low) <= last && uint32(addr) <= uint32(self.High)
}
