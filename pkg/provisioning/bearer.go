package provisioning

// MessageType tags the kind of mesh traffic carried in a bearer frame,
// values follow the proxy protocol PDU type assignments.
type MessageType byte

const (
	MessageTypeNetworkPdu      MessageType = 0x00
	MessageTypeMeshBeacon      MessageType = 0x01
	MessageTypeProxyConfig     MessageType = 0x02
	MessageTypeProvisioningPdu MessageType = 0x03
)

// Bearer is the transport abstraction carrying PDUs between provisioner and
// device. Implementations (GATT, advertising) live outside this module.
//
// A Bearer holds a single Events delegate at a time. The Manager temporarily
// installs itself as that delegate for the duration of a handshake and keeps
// forwarding every event to the delegate it displaced.
type Bearer interface {
	// Supports reports whether the Bearer can carry mt frames.
	Supports(mt MessageType) bool

	// IsOpen reports whether the Bearer is open for traffic.
	IsOpen() bool

	// Send writes one mt frame. It errors if the frame could not be handed to
	// the transport, delivery is not acknowledged at this layer.
	Send(data []byte, mt MessageType) error

	// Delegate returns the current Events delegate, nil if none is installed.
	Delegate() Events

	// SetDelegate installs events as the Events delegate, replacing any
	// previous one. A nil events detaches the Bearer.
	SetDelegate(events Events)
}

// Events is the delegate interface through which a Bearer reports traffic and
// lifecycle changes. Calls are made from the Bearer, never from the caller,
// and are expected to be serialized by the Bearer.
type Events interface {
	// OnOpen is called once the Bearer is open for traffic.
	OnOpen(b Bearer)

	// OnClose is called when the Bearer closed, err carries the transport
	// reason and may be nil on an orderly shutdown.
	OnClose(b Bearer, err error)

	// OnData is called for every received frame.
	OnData(b Bearer, data []byte, mt MessageType)
}
