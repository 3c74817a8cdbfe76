// Package policy adjusts rate-limiting decisions beyond simple
// allow/deny: charging extra tokens for error responses, refunding
// tokens for cacheable ones, and combining policies together.
package policy

import (
	"context"

	"github.com/Vipul984/ratelimit"
	"github.com/Vipul984/ratelimit/algorithm"
	"github.com/Vipul984/ratelimit/storage"
)

// Policy customizes rate-limiting behavior beyond the algorithm's own
// allow/deny decision.
type Policy interface {
	// TokenCost reports the token cost of a request under quota.
	// Default policies return 1.
	TokenCost(quota ratelimit.Quota) uint64

	// OnResponse is called after a response is produced, returning the
	// number of tokens to refund (positive) or additionally charge
	// (negative). Zero means no adjustment.
	OnResponse(statusCode uint16, decision ratelimit.Decision) int64

	// Name identifies the policy for logging.
	Name() string
}

// DefaultPolicy applies no adjustment: standard allow/deny, cost 1.
type DefaultPolicy struct{}

// NewDefaultPolicy constructs a DefaultPolicy.
func NewDefaultPolicy() DefaultPolicy { return DefaultPolicy{} }

func (DefaultPolicy) TokenCost(ratelimit.Quota) uint64                          { return 1 }
func (DefaultPolicy) OnResponse(uint16, ratelimit.Decision) int64               { return 0 }
func (DefaultPolicy) Name() string                                             { return "default" }

// PenaltyPolicy charges extra tokens when a request results in a 4xx or
// 5xx response, discouraging clients from hammering failing endpoints.
type PenaltyPolicy struct {
	ClientErrorMultiplier uint64
	ServerErrorMultiplier uint64
}

// NewPenaltyPolicy applies multiplier to both 4xx and 5xx responses.
func NewPenaltyPolicy(multiplier uint64) PenaltyPolicy {
	return PenaltyPolicy{ClientErrorMultiplier: multiplier, ServerErrorMultiplier: multiplier}
}

// NewPenaltyPolicyWithMultipliers sets distinct multipliers for client
// vs server errors.
func NewPenaltyPolicyWithMultipliers(clientError, serverError uint64) PenaltyPolicy {
	return PenaltyPolicy{ClientErrorMultiplier: clientError, ServerErrorMultiplier: serverError}
}

// DefaultPenaltyPolicy returns a PenaltyPolicy with multiplier 2.
func DefaultPenaltyPolicy() PenaltyPolicy { return NewPenaltyPolicy(2) }

func (PenaltyPolicy) TokenCost(ratelimit.Quota) uint64 { return 1 }

func (p PenaltyPolicy) OnResponse(statusCode uint16, _ ratelimit.Decision) int64 {
	switch {
	case statusCode >= 400 && statusCode <= 499:
		return -int64(p.ClientErrorMultiplier - 1)
	case statusCode >= 500 && statusCode <= 599:
		return -int64(p.ServerErrorMultiplier - 1)
	default:
		return 0
	}
}

func (PenaltyPolicy) Name() string { return "penalty" }

// CreditPolicy refunds a token for cacheable responses that should not
// count against the limit.
type CreditPolicy struct {
	RefundNotModified bool
	RefundNoContent   bool
}

// NewCreditPolicy returns a CreditPolicy that refunds 304 Not Modified
// responses only.
func NewCreditPolicy() CreditPolicy { return CreditPolicy{RefundNotModified: true} }

// WithNoContent also refunds 204 No Content responses.
func (c CreditPolicy) WithNoContent() CreditPolicy {
	c.RefundNoContent = true
	return c
}

func (CreditPolicy) TokenCost(ratelimit.Quota) uint64 { return 1 }

func (c CreditPolicy) OnResponse(statusCode uint16, _ ratelimit.Decision) int64 {
	if statusCode == 304 && c.RefundNotModified {
		return 1
	}
	if statusCode == 204 && c.RefundNoContent {
		return 1
	}
	return 0
}

func (CreditPolicy) Name() string { return "credit" }

// CompositePolicy chains multiple policies: TokenCost is the max across
// all policies, OnResponse is their sum.
type CompositePolicy struct {
	policies []Policy
}

// NewCompositePolicy builds an empty CompositePolicy.
func NewCompositePolicy() CompositePolicy { return CompositePolicy{} }

// With appends p to the chain, returning the updated composite.
func (c CompositePolicy) With(p Policy) CompositePolicy {
	c.policies = append(append([]Policy{}, c.policies...), p)
	return c
}

func (c CompositePolicy) TokenCost(quota ratelimit.Quota) uint64 {
	var max uint64 = 1
	found := false
	for _, p := range c.policies {
		cost := p.TokenCost(quota)
		if !found || cost > max {
			max = cost
			found = true
		}
	}
	return max
}

func (c CompositePolicy) OnResponse(statusCode uint16, decision ratelimit.Decision) int64 {
	var sum int64
	for _, p := range c.policies {
		sum += p.OnResponse(statusCode, decision)
	}
	return sum
}

func (CompositePolicy) Name() string { return "composite" }

// Apply binds a Policy's OnResponse verdict to an algorithm's stored
// state: it computes the signed token delta for statusCode/decision and,
// if non-zero, applies it via algo.AdjustCost. This is the integration
// point a request pipeline calls once a response status is known.
func Apply(ctx context.Context, s storage.Storage, algo algorithm.Algorithm, key string, quota ratelimit.Quota, statusCode uint16, decision ratelimit.Decision, p Policy) error {
	delta := p.OnResponse(statusCode, decision)
	if delta == 0 {
		return nil
	}
	return algo.AdjustCost(ctx, s, key, quota, delta)
}
