// Package mesh defines the network-side vocabulary shared by the provisioning
// and sequence subsystems: unicast addresses, address ranges, provisioned node
// records and the Network catalog interface through which the provisioning
// layer queries the mesh topology.
//
// The package holds no mutable state of its own. Concrete Network
// implementations live in subpackages (see netdb for a file backed catalog).
package mesh
