package provisioning

import (
	"bytes"
	"sync"

	"github.com/google/uuid"

	"code.btmesh.org/golang/internal/observability"
	"code.btmesh.org/golang/pkg/mesh"
)

// State is the handshake position of a Manager.
type State int

const (
	// StateReady is the initial state, the Manager accepts Identify.
	StateReady State = iota

	// StateInvitationSent means the invite PDU left, capabilities are awaited.
	StateInvitationSent

	// StateCapabilitiesReceived means the device described itself, the Manager
	// accepts Provision.
	StateCapabilitiesReceived

	// StatePublicKeySent means start & publicKey PDUs left, the device public
	// key is awaited.
	StatePublicKeySent

	// StatePublicKeyReceived means the device public key is held, the
	// authentication outcome is awaited.
	StatePublicKeyReceived

	// StateComplete is the terminal success state.
	StateComplete

	// StateInvalid is the terminal state entered on a peer protocol violation
	// or a malformed response.
	StateInvalid

	// StateFailed is the terminal state entered on a bearer error, the reason
	// is available through Failure.
	StateFailed
)

// Terminal reports whether no further transition can leave the State.
func (self State) Terminal() bool {
	return StateComplete == self || StateInvalid == self || StateFailed == self
}

// String implements fmt.Stringer.
func (self State) String() string {
	names := [...]string{
		"ready", "invitationSent", "capabilitiesReceived", "publicKeySent",
		"publicKeyReceived", "complete", "invalidState", "fail",
	}
	if self < 0 || int(self) >= len(names) {
		return "unknown"
	}
	return names[self]
}

// Device identifies one unprovisioned device.
type Device struct {
	UUID    uuid.UUID
	Name    string
	OobInfo uint16
}

// StateObserver is notified after every Manager state change, it receives the
// device identity and the state just entered. On terminal states the bearer
// delegate is restored before the notification fires.
//
// The observer runs synchronously on the transition path and must not call
// back into the Manager.
type StateObserver func(device Device, state State)

// KeyExchanger supplies the provisioner ECDH material, cryptography is an
// opaque collaborator of this package.
type KeyExchanger interface {
	// PublicKey returns the 64 bytes provisioner ephemeral public key.
	PublicKey() ([]byte, error)

	// SharedSecret computes the ECDH secret against the device public key.
	SharedSecret(devicePub []byte) ([]byte, error)
}

// Manager drives the provisioning handshake of a single unprovisioned device
// over one Bearer within one mesh.Network context.
//
// A Manager is pushed forward from two sides, direct calls (Identify,
// Provision) and Bearer events. An inner lock serializes both paths, state
// transitions read-then-write the current state and must not race. No Manager
// operation blocks, all work is synchronous PDU construction & state
// assignment.
type Manager struct {
	mut     sync.Mutex
	device  Device
	bearer  Bearer
	network mesh.Network
	keys    KeyExchanger
	obs     *observability.Observability

	state        State
	failure      error
	capabilities *Capabilities
	unicast      mesh.Address
	assigned     bool
	localKey     []byte
	deviceKey    []byte
	saved        Events
	intercepting bool
	observer     StateObserver
}

// NewManager returns a Manager bound to device over bearer.
//
// network supplies the topology queries behind address assignment and may be
// nil when no local network identity exists yet. keys may be nil for an
// Identify-only Manager. obs may be nil. It errors if bearer is nil.
func NewManager(device Device, bearer Bearer, network mesh.Network, keys KeyExchanger, obs *observability.Observability) (*Manager, error) {
	if nil == bearer {
		return nil, newError("nil Bearer")
	}

	rv := Manager{
		device:  device,
		bearer:  bearer,
		network: network,
		keys:    keys,
		obs:     obs,
		state:   StateReady,
	}
	return &rv, nil
}

// SetObserver registers fn as the state change observer, replacing any
// previous one. Pass nil to stop observing.
func (self *Manager) SetObserver(fn StateObserver) {
	self.mut.Lock()
	defer self.mut.Unlock()
	self.observer = fn
}

// State returns the current handshake state.
func (self *Manager) State() State {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.state
}

// Failure returns the bearer error that moved the Manager to StateFailed,
// nil in every other state.
func (self *Manager) Failure() error {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.failure
}

// Capabilities returns the device Capabilities, nil before
// StateCapabilitiesReceived.
func (self *Manager) Capabilities() *Capabilities {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.capabilities
}

// UnicastAddress returns the tentative unicast address chosen for the device
// primary element. The bool flag is false while no address is assigned.
func (self *Manager) UnicastAddress() (mesh.Address, bool) {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.unicast, self.assigned
}

// SetUnicastAddress pre-sets the device primary element address, disabling
// automatic assignment. It errors if the handshake already started.
func (self *Manager) SetUnicastAddress(addr mesh.Address) error {
	self.mut.Lock()
	defer self.mut.Unlock()
	if StateReady != self.state {
		return wrapError(ErrInvalidState, "handshake already started, state is %s", self.state)
	}
	self.unicast = addr
	self.assigned = true
	return nil
}

// DeviceKey returns the raw device public key, nil before
// StatePublicKeyReceived.
func (self *Manager) DeviceKey() []byte {
	self.mut.Lock()
	defer self.mut.Unlock()
	return self.deviceKey
}

// UnicastAddressValid reports whether the tentative unicast address is usable.
//
// The known flag is false until the answer is knowable, ie. until both the
// device Capabilities were received and a local network identity is available.
// Once knowable, valid is true iff the address range sized for the device
// element count is free in the network and falls inside the local provisioner
// allocation.
func (self *Manager) UnicastAddressValid() (valid bool, known bool) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if nil == self.capabilities || nil == self.network || !self.network.HasLocalProvisioner() {
		return false, false
	}

	count := self.capabilities.ElementCount
	if !self.assigned {
		return false, true
	}
	valid = self.network.RangeIsFree(self.unicast, count) && self.network.RangeIsAllocated(self.unicast, count)
	return valid, true
}

// Identify starts the handshake by inviting the device to identify itself for
// attentionTimer seconds.
//
// Preconditions: the bearer supports provisioning PDUs, the bearer is open and
// the Manager is in StateReady. Precondition violations are returned without
// any state mutation. On success the Manager takes over the bearer delegate,
// enters StateInvitationSent and sends the invite PDU.
func (self *Manager) Identify(attentionTimer uint8) error {
	self.mut.Lock()
	defer self.mut.Unlock()

	if !self.bearer.Supports(MessageTypeProvisioningPdu) {
		return wrapError(ErrUnsupportedBearer, "bearer can not carry provisioning PDUs")
	}
	if !self.bearer.IsOpen() {
		return wrapError(ErrBearerClosed, "bearer must be open before Identify")
	}
	if StateReady != self.state {
		return wrapError(ErrInvalidState, "Identify requires state ready, state is %s", self.state)
	}

	// intercept the bearer events for the handshake duration, the displaced
	// delegate keeps observing raw traffic and is restored on terminal state.
	// After a bearer reconnect the Manager is still the delegate, capturing it
	// again would lose the displaced delegate and forward events to itself
	if !self.intercepting {
		self.saved = self.bearer.Delegate()
		self.bearer.SetDelegate(self)
		self.intercepting = true
	}

	self.setState(StateInvitationSent)

	return self.send(Invite{AttentionTimer: attentionTimer})
}

// Provision continues the handshake by committing the parameters chosen from
// the device Capabilities, sending the start PDU followed by the provisioner
// public key.
//
// Precondition: the Manager is in StateCapabilitiesReceived, violations are
// returned without any state mutation. A KeyExchanger must have been supplied
// at NewManager time.
func (self *Manager) Provision(algorithm Algorithm, method PublicKeyMethod, auth AuthMethod) error {
	self.mut.Lock()
	defer self.mut.Unlock()

	if StateCapabilitiesReceived != self.state {
		return wrapError(ErrInvalidState, "Provision requires state capabilitiesReceived, state is %s", self.state)
	}
	if nil == self.keys {
		return newError("Provision requires a KeyExchanger")
	}

	key, err := self.keys.PublicKey()
	if nil != err {
		return wrapError(err, "failed obtaining provisioner public key")
	}
	self.localKey = key

	err = self.send(Start{Algorithm: algorithm, PublicKey: method, AuthMethod: auth})
	if nil != err {
		return err
	}

	self.setState(StatePublicKeySent)

	return self.send(PublicKey{Key: key})
}

// Events implementation, invoked by the Bearer.

// OnOpen forwards to the displaced delegate, then restarts the handshake: a
// bearer reconnect drops any partial progress and returns the Manager to
// StateReady.
func (self *Manager) OnOpen(b Bearer) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if nil != self.saved {
		self.saved.OnOpen(b)
	}

	self.capabilities = nil
	self.assigned = false
	self.deviceKey = nil
	self.setState(StateReady)
}

// OnClose forwards to the displaced delegate. The Manager does not transition,
// callers interpret a closed bearer as an abandoned handshake.
func (self *Manager) OnClose(b Bearer, err error) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if nil != self.saved {
		self.saved.OnClose(b, err)
	}
}

// OnData forwards the frame to the displaced delegate, then decodes it and
// dispatches on the (state, response type) pair. Only the defined transitions
// are legal, any other pair leaves the state undisturbed: premature, duplicate
// or foreign traffic is dropped rather than treated as an error.
func (self *Manager) OnData(b Bearer, data []byte, mt MessageType) {
	self.mut.Lock()
	defer self.mut.Unlock()

	if nil != self.saved {
		self.saved.OnData(b, data, mt)
	}

	if MessageTypeProvisioningPdu != mt {
		return
	}
	rsp, ok := Decode(data)
	if !ok {
		return
	}
	if self.state.Terminal() {
		return
	}

	switch {
	case StateInvitationSent == self.state && TypeCapabilities == rsp.Type:
		self.onCapabilities(rsp)

	case StatePublicKeySent == self.state && TypePublicKey == rsp.Type:
		self.onPublicKey(rsp)

	case StatePublicKeyReceived == self.state && TypeInputComplete == rsp.Type:
		if !rsp.IsValid() {
			self.toTerminal(StateInvalid)
			return
		}
		self.toTerminal(StateComplete)

	default:
		self.obs.Log().Debug(
			"dropped provisioning response",
			"device", self.device.UUID.String(),
			"state", self.state.String(),
			"pdu", rsp.Type.String(),
		)
	}
}

var _ Events = &Manager{}

// onCapabilities handles (invitationSent, capabilities).
func (self *Manager) onCapabilities(rsp Response) {
	if !rsp.IsValid() {
		self.toTerminal(StateInvalid)
		return
	}

	self.capabilities = rsp.Capabilities

	// derive a tentative primary address unless one was pre-set
	if !self.assigned && nil != self.network && self.network.HasLocalProvisioner() {
		addr, ok := self.network.NextFreeUnicast(rsp.Capabilities.ElementCount)
		if ok {
			self.unicast = addr
			self.assigned = true
		}
	}

	self.setState(StateCapabilitiesReceived)
}

// onPublicKey handles (publicKeySent, publicKey). A malformed, zero or echoed
// key is a peer protocol violation.
func (self *Manager) onPublicKey(rsp Response) {
	if !rsp.IsValid() || isZero(rsp.Key) || bytes.Equal(rsp.Key, self.localKey) {
		self.toTerminal(StateInvalid)
		return
	}

	self.deviceKey = rsp.Key
	self.setState(StatePublicKeyReceived)
}

// send encodes & writes req over the bearer. A transport failure is terminal,
// the Manager enters StateFailed and the bearer error propagates to the caller.
func (self *Manager) send(req Request) error {
	err := self.bearer.Send(Encode(req), MessageTypeProvisioningPdu)
	if nil != err {
		self.failure = err
		self.toTerminal(StateFailed)
		return wrapError(err, "failed sending %s PDU", req.PduType())
	}
	return nil
}

// toTerminal enters a terminal state, restoring the displaced bearer delegate
// strictly before the observer notification fires.
func (self *Manager) toTerminal(s State) {
	if self.intercepting {
		self.bearer.SetDelegate(self.saved)
		self.saved = nil
		self.intercepting = false
	}
	self.setState(s)
}

// setState assigns the state and publishes the change, callers hold the lock.
func (self *Manager) setState(s State) {
	self.state = s
	if nil != self.observer {
		self.observer(self.device, s)
	}
}

// isZero reports whether data contains only zero bytes.
func isZero(data []byte) bool {
	for _, b := range data {
		if 0 != b {
			return false
		}
	}
	return true
}
