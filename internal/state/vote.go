package state

import (
	"fmt"

	"intake/internal/services"
)

// VoteRule is a track's quorum rule.
type VoteRule struct {
	Numerator    int `json:"numerator"`
	Denominator  int `json:"denominator"`
	MinimumVotes int `json:"minimumVotes"`
}

// DefaultVoteRule is two thirds of eligible voters, at least one vote.
var DefaultVoteRule = VoteRule{Numerator: 2, Denominator: 3, MinimumVotes: 1}

// NewVoteRule validates and normalizes a rule.
func NewVoteRule(numerator, denominator, minimumVotes int) (VoteRule, error) {
	if numerator < 1 {
		return VoteRule{}, services.Wrap(services.ErrValidation, "state", "vote rule", fmt.Sprintf("numerator %d must be at least 1", numerator), nil)
	}
	if minimumVotes < 0 {
		return VoteRule{}, services.Wrap(services.ErrValidation, "state", "vote rule", fmt.Sprintf("minimum votes %d must be non-negative", minimumVotes), nil)
	}
	return VoteRule{Numerator: numerator, Denominator: denominator, MinimumVotes: minimumVotes}.Normalized(), nil
}

// Normalized clamps the denominator to at least the numerator and repairs an
// unusable numerator with the default rule.
func (r VoteRule) Normalized() VoteRule {
	if r.Numerator < 1 {
		r.Numerator = DefaultVoteRule.Numerator
		if r.Denominator == 0 {
			r.Denominator = DefaultVoteRule.Denominator
		}
	}
	if r.Denominator < r.Numerator {
		r.Denominator = r.Numerator
	}
	if r.MinimumVotes < 0 {
		r.MinimumVotes = 0
	}
	return r
}

// Threshold returns max(minimumVotes, ceil(eligible*numerator/denominator)),
// never less than one vote.
func (r VoteRule) Threshold(eligible int) int {
	r = r.Normalized()
	if eligible < 0 {
		eligible = 0
	}
	quota := (eligible*r.Numerator + r.Denominator - 1) / r.Denominator
	threshold := max(r.MinimumVotes, quota)
	return max(threshold, 1)
}

// String renders the rule as "2/3 (min 1)".
func (r VoteRule) String() string {
	return fmt.Sprintf("%d/%d (min %d)", r.Numerator, r.Denominator, r.MinimumVotes)
}

// VoteContext snapshots the tally that produced a vote decision.
type VoteContext struct {
	Rule      VoteRule `json:"rule"`
	Eligible  int      `json:"eligible"`
	Threshold int      `json:"threshold"`
	Accept    int      `json:"accept"`
	Deny      int      `json:"deny"`
	Cancelled int      `json:"cancelled"`
}
