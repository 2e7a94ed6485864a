package auth

import "fmt"

// Capability names a privileged engine operation.
type Capability int32

const (
	CapabilityAppendRedemption Capability = iota
	CapabilityFulfill
	CapabilityAcceptBids
	CapabilitySettleRound
	CapabilityReorder
)

func (c Capability) String() string {
	switch c {
	case CapabilityAppendRedemption:
		return "append_redemption"
	case CapabilityFulfill:
		return "fulfill"
	case CapabilityAcceptBids:
		return "accept_bids"
	case CapabilitySettleRound:
		return "settle_round"
	case CapabilityReorder:
		return "reorder"
	default:
		return "unknown"
	}
}

// Authorizer gates who may invoke each engine operation. The engine treats
// this as an external collaborator: the policy behind it (static allow-list,
// on-record role registry) is not its concern.
type Authorizer interface {
	Authorize(caller Address, cap Capability) error
}

// StaticAuthorizer is an in-memory allow-list Authorizer.
type StaticAuthorizer struct {
	grants map[Capability]map[Address]bool
}

func NewStaticAuthorizer() *StaticAuthorizer {
	return &StaticAuthorizer{
		grants: make(map[Capability]map[Address]bool),
	}
}

// Grant allows caller to invoke operations gated by cap.
func (a *StaticAuthorizer) Grant(caller Address, cap Capability) {
	if a.grants[cap] == nil {
		a.grants[cap] = make(map[Address]bool)
	}
	a.grants[cap][caller] = true
}

// Revoke removes a grant.
func (a *StaticAuthorizer) Revoke(caller Address, cap Capability) {
	delete(a.grants[cap], caller)
}

// Authorize returns an error if caller lacks cap.
func (a *StaticAuthorizer) Authorize(caller Address, cap Capability) error {
	if a.grants[cap][caller] {
		return nil
	}
	return fmt.Errorf("caller %s lacks capability %s", caller, cap)
}

// OpenAuthorizer permits every caller. Used by tests that exercise queue
// semantics rather than permissioning.
type OpenAuthorizer struct{}

func (OpenAuthorizer) Authorize(Address, Capability) error { return nil }
