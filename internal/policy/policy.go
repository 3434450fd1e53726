// Package policy implements the four interchangeable backend-selection
// strategies behind a single capability contract.
package policy

// Policy is the capability contract every selection strategy implements.
// All methods must be safe to call from many concurrent forwarders; no
// implementation may hold an internal lock across a suspension point that
// performs network I/O.
type Policy interface {
	// Next returns one backend present in pool, or ("", false) iff pool is
	// empty. It must also update the policy's served-count for the backend
	// it returns.
	Next(pool []string) (string, bool)

	// Started records that a forwarder began servicing id.
	Started(id string)

	// Ended records that a forwarder finished servicing id. Must not
	// under-flow any counter.
	Ended(id string)

	// Metrics returns a read-only, human-readable snapshot of this
	// policy's per-backend counters. Two calls with no intervening
	// Next/Started/Ended activity return equal maps.
	Metrics() map[string]string
}
