// Package sequence implements the anti-replay bookkeeping of a mesh node:
// monotonically increasing sequence numbers for locally originated messages and
// last/previous SeqAuth tracking for messages received from remote elements.
//
// All counters live behind the Store contract, a keyed unsigned-integer
// get/set/remove interface. Pair the Authority with a durable Store (see the
// boltdb & pgdb subpackages) to keep the monotonicity guarantees across process
// restarts, duplicate sequence numbers under one IV Index are indistinguishable
// from a replay attack by receivers.
package sequence
