package service

import (
	"errors"
	"fmt"
	"strings"
)

// Policy selects how the weather and news fetches are composed.
type Policy int

const (
	// PolicySequential fetches weather, then news. The first failure aborts the rest.
	PolicySequential Policy = iota
	// PolicyAll fetches both concurrently and succeeds only if both succeed.
	PolicyAll
	// PolicyRace fetches both concurrently; the first to settle decides the outcome.
	PolicyRace
)

var ErrUnknownPolicy = errors.New("unknown policy")

// Policies lists every policy in presentation order.
func Policies() []Policy {
	return []Policy{PolicySequential, PolicyAll, PolicyRace}
}

func (p Policy) String() string {
	switch p {
	case PolicySequential:
		return "sequential"
	case PolicyAll:
		return "all"
	case PolicyRace:
		return "race"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts a policy name, case-insensitively. "wait-all" is an alias for "all".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sequential":
		return PolicySequential, nil
	case "all", "wait-all":
		return PolicyAll, nil
	case "race":
		return PolicyRace, nil
	}
	return 0, fmt.Errorf("%w: %q (want sequential, all or race)", ErrUnknownPolicy, s)
}
