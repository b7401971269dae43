package provisioning

import (
	"fmt"
)

// PduType is the 1 byte opcode carried first in every provisioning PDU.
type PduType byte

const (
	TypeInvite        PduType = 0x00 // Provisioning Invite
	TypeCapabilities  PduType = 0x01 // Provisioning Capabilities
	TypeStart         PduType = 0x02 // Provisioning Start
	TypePublicKey     PduType = 0x03 // Provisioning Public Key
	TypeInputComplete PduType = 0x04 // Provisioning Input Complete
	TypeConfirmation  PduType = 0x05 // Provisioning Confirmation
	TypeRandom        PduType = 0x06 // Provisioning Random
	TypeData          PduType = 0x07 // Provisioning Data
	TypeComplete      PduType = 0x08 // Provisioning Complete
	TypeFailed        PduType = 0x09 // Provisioning Failed
)

// IsKnown reports whether the PduType is one of the 10 assigned opcodes.
func (self PduType) IsKnown() bool {
	return self <= TypeFailed
}

// String implements fmt.Stringer.
func (self PduType) String() string {
	names := [...]string{
		"invite", "capabilities", "start", "publicKey", "inputComplete",
		"confirmation", "random", "data", "complete", "failed",
	}
	if !self.IsKnown() {
		return fmt.Sprintf("unknown(0x%02X)", byte(self))
	}
	return names[self]
}

// Algorithm selects the key agreement & confirmation suite of the handshake.
type Algorithm byte

const (
	AlgorithmFipsP256 Algorithm = 0x00 // FIPS P-256 Elliptic Curve
)

// PublicKeyMethod tells the device how the provisioner public key is obtained.
type PublicKeyMethod byte

const (
	NoOobPublicKey PublicKeyMethod = 0x00 // key exchanged in Public Key PDUs
	OobPublicKey   PublicKeyMethod = 0x01 // device key known out of band
)

// AuthMethod selects the authentication performed after the key exchange.
type AuthMethod byte

const (
	AuthNone   AuthMethod = 0x00 // no OOB authentication
	AuthStatic AuthMethod = 0x01 // static OOB value
	AuthOutput AuthMethod = 0x02 // device outputs, provisioner inputs
	AuthInput  AuthMethod = 0x03 // provisioner outputs, device inputs
)

// Request is a provisioning PDU sent by the provisioner.
//
// Every Request serializes to its opcode byte followed by fixed width fields
// in PDU order, no length prefixes and no delimiters. Receivers derive each
// field width from the opcode alone, the codec therefore never validates field
// lengths, callers own supplying slices of the documented sizes.
type Request interface {
	// PduType returns the opcode tagging the Request on the wire.
	PduType() PduType

	// payload returns the Request fields serialized in PDU order.
	payload() []byte
}

// Encode serializes req to its wire form, 1 opcode byte followed by the
// Request payload. Encode is total & deterministic, it has no error path.
func Encode(req Request) []byte {
	payload := req.payload()
	rv := make([]byte, 0, 1+len(payload))
	rv = append(rv, byte(req.PduType()))
	rv = append(rv, payload...)
	return rv
}

// Invite asks the device to identify itself.
// Wire payload: attention timer, 1 byte, duration in seconds.
type Invite struct {
	AttentionTimer uint8
}

func (self Invite) PduType() PduType {
	return TypeInvite
}

func (self Invite) payload() []byte {
	return []byte{self.AttentionTimer}
}

// Start commits the handshake parameters chosen from the device Capabilities.
// Wire payload: algorithm 1 byte, public key method 1 byte, authentication
// method 1 byte.
type Start struct {
	Algorithm  Algorithm
	PublicKey  PublicKeyMethod
	AuthMethod AuthMethod
}

func (self Start) PduType() PduType {
	return TypeStart
}

func (self Start) payload() []byte {
	return []byte{byte(self.Algorithm), byte(self.PublicKey), byte(self.AuthMethod)}
}

// PublicKey transfers the provisioner ephemeral public key.
// Wire payload: X coordinate 32 bytes then Y coordinate 32 bytes, 64 bytes total.
type PublicKey struct {
	Key []byte
}

func (self PublicKey) PduType() PduType {
	return TypePublicKey
}

func (self PublicKey) payload() []byte {
	return self.Key
}

// Confirmation transfers the provisioner confirmation value.
// Wire payload: confirmation, 16 bytes.
type Confirmation struct {
	Value []byte
}

func (self Confirmation) PduType() PduType {
	return TypeConfirmation
}

func (self Confirmation) payload() []byte {
	return self.Value
}

// Random discloses the provisioner random number backing its Confirmation.
// Wire payload: random, 16 bytes.
type Random struct {
	Value []byte
}

func (self Random) PduType() PduType {
	return TypeRandom
}

func (self Random) payload() []byte {
	return self.Value
}

// Data carries the encrypted provisioning data.
// Wire payload: ciphertext 25 bytes then MIC 8 bytes, 33 bytes total.
type Data struct {
	Encrypted []byte
}

func (self Data) PduType() PduType {
	return TypeData
}

func (self Data) payload() []byte {
	return self.Encrypted
}
