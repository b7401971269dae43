// Package provisioning implements the provisioner side of the Bluetooth Mesh
// provisioning handshake: the fixed-width PDU codec, the bearer contract over
// which PDUs travel and the Manager state machine that drives a single
// unprovisioned device from invitation to key exchange.
//
// The package consumes its collaborators through narrow interfaces. The Bearer
// carries PDU bytes and emits open/close/data events, the mesh.Network catalog
// answers address queries and the KeyExchanger supplies opaque ECDH material.
// During a handshake the Manager installs itself as the Bearer event delegate,
// the previous delegate keeps receiving every event and is restored as soon as
// the Manager reaches a terminal state.
package provisioning
