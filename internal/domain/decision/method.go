package decision

import (
	"strings"

	"tradecouncil/pkg/errors"
)

// CoordinationMethod selects how per-agent votes are combined
type CoordinationMethod string

const (
	MethodSimpleVoting        CoordinationMethod = "simple_voting"
	MethodWeightedVoting      CoordinationMethod = "weighted_voting"
	MethodConfidenceWeighted  CoordinationMethod = "confidence_weighted"
	MethodPerformanceWeighted CoordinationMethod = "performance_weighted"
	MethodConsensus           CoordinationMethod = "consensus"
	MethodHybrid              CoordinationMethod = "hybrid"
)

// CoordinationMethods lists every method in declaration order
var CoordinationMethods = []CoordinationMethod{
	MethodSimpleVoting,
	MethodWeightedVoting,
	MethodConfidenceWeighted,
	MethodPerformanceWeighted,
	MethodConsensus,
	MethodHybrid,
}

// Valid checks if coordination method is known
func (m CoordinationMethod) Valid() bool {
	for _, known := range CoordinationMethods {
		if m == known {
			return true
		}
	}
	return false
}

// String returns string representation
func (m CoordinationMethod) String() string {
	return string(m)
}

// ParseCoordinationMethod parses a method name, case-insensitive
func ParseCoordinationMethod(s string) (CoordinationMethod, error) {
	m := CoordinationMethod(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", errors.Wrapf(errors.ErrUnknownMethod, "coordination method %q", s)
	}
	return m, nil
}

// ConflictResolution names the policy applied when BUY and SELL votes coexist
type ConflictResolution string

const (
	ResolutionNone              ConflictResolution = "none"
	ResolutionMajorityRule      ConflictResolution = "majority_rule"
	ResolutionHighestConfidence ConflictResolution = "highest_confidence"
	ResolutionBestPerformer     ConflictResolution = "best_performer"
	ResolutionWeightedAverage   ConflictResolution = "weighted_average"
	ResolutionAbstain           ConflictResolution = "abstain"
)

// Valid checks if conflict resolution is known
func (r ConflictResolution) Valid() bool {
	switch r {
	case ResolutionNone, ResolutionMajorityRule, ResolutionHighestConfidence,
		ResolutionBestPerformer, ResolutionWeightedAverage, ResolutionAbstain:
		return true
	}
	return false
}

// String returns string representation
func (r ConflictResolution) String() string {
	return string(r)
}

// ParseConflictResolution parses a policy name, case-insensitive
func ParseConflictResolution(s string) (ConflictResolution, error) {
	r := ConflictResolution(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", errors.Wrapf(errors.ErrUnknownMethod, "conflict resolution %q", s)
	}
	return r, nil
}
