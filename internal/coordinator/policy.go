package coordinator

import "fmt"

// Policy decides whether a request for a settled descriptor refetches.
type Policy string

const (
	// PolicyCacheAndNetwork serves the cached view and always revalidates
	// unless a fetch is already in flight.
	PolicyCacheAndNetwork Policy = "cache-and-network"

	// PolicyCacheFirst does not refetch a descriptor that settled
	// successfully. Errored descriptors are refetched.
	PolicyCacheFirst Policy = "cache-first"
)

// ParsePolicy validates a policy name. Empty means PolicyCacheAndNetwork.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyCacheAndNetwork:
		return PolicyCacheAndNetwork, nil
	case PolicyCacheFirst:
		return PolicyCacheFirst, nil
	default:
		return "", fmt.Errorf("unknown fetch policy %q: must be %s or %s", s, PolicyCacheAndNetwork, PolicyCacheFirst)
	}
}
