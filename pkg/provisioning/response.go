package provisioning

import (
	"bytes"
)

const (
	capabilitiesLen = 11
	publicKeyLen    = 64
)

// Capabilities is the device self description carried by the capabilities PDU.
//
// Beyond ElementCount (which sizes the unicast address assignment) the fields
// are forwarded opaquely to the caller choosing the Start parameters.
type Capabilities struct {
	ElementCount     uint8
	Algorithms       uint16
	PublicKeyType    uint8
	StaticOobType    uint8
	OutputOobSize    uint8
	OutputOobActions uint16
	InputOobSize     uint8
	InputOobActions  uint16
}

// parseCapabilities returns nil unless data is exactly the 11 bytes
// capabilities layout.
func parseCapabilities(data []byte) *Capabilities {
	if capabilitiesLen != len(data) {
		return nil
	}
	rv := Capabilities{
		ElementCount:     data[0],
		Algorithms:       uint16(data[1])<<8 | uint16(data[2]),
		PublicKeyType:    data[3],
		StaticOobType:    data[4],
		OutputOobSize:    data[5],
		OutputOobActions: uint16(data[6])<<8 | uint16(data[7]),
		InputOobSize:     data[8],
		InputOobActions:  uint16(data[9])<<8 | uint16(data[10]),
	}
	return &rv
}

// Response is a provisioning PDU received from the device.
//
// Only capabilities, publicKey & inputComplete responses are understood by
// this subsystem, Decode drops everything else. A decoded Response may still
// fail IsValid, "parses" and "is acceptable" are distinct failure points: an
// undecodable buffer is dropped as foreign traffic while a recognized but
// malformed Response is a peer protocol violation.
type Response struct {
	Type PduType

	// Capabilities is set for capabilities Responses, nil if the payload did
	// not match the capabilities layout.
	Capabilities *Capabilities

	// Key is the raw uninterpreted public key of publicKey Responses.
	Key []byte

	// trailing holds unexpected bytes after a no-payload response.
	trailing []byte
}

// Decode parses data into a Response.
// The bool flag is false if data is empty, if the first byte is not an
// assigned opcode or if the opcode is not one of the three response types this
// subsystem understands.
func Decode(data []byte) (Response, bool) {
	rv := Response{}
	if 0 == len(data) {
		return rv, false
	}

	pt := PduType(data[0])
	if !pt.IsKnown() {
		return rv, false
	}

	payload := data[1:]
	switch pt {
	case TypeCapabilities:
		rv.Capabilities = parseCapabilities(payload)
	case TypePublicKey:
		// bearers may recycle their receive buffer, the key must not alias it
		rv.Key = bytes.Clone(payload)
	case TypeInputComplete:
		// no payload expected, IsValid flags leftovers
		rv.trailing = payload
	default:
		return rv, false
	}

	rv.Type = pt
	return rv, true
}

// IsValid reports whether the Response payload is structurally acceptable:
// a parsed capabilities record with at least one element, a 64 bytes public
// key, an empty inputComplete.
func (self Response) IsValid() bool {
	switch self.Type {
	case TypeCapabilities:
		return nil != self.Capabilities && self.Capabilities.ElementCount > 0
	case TypePublicKey:
		return publicKeyLen == len(self.Key)
	case TypeInputComplete:
		return 0 == len(self.trailing)
	default:
		return false
	}
}
