package interfaces

import "fmt"

// OperationName enumerates the closed set of computations the dispatcher
// performs. Adding an operation means extending this enum and the
// dispatcher's exhaustive switch; there is no runtime fallthrough for
// names outside the set.
type OperationName int

const (
	// OpCalculateClearingPrice computes the uniform-price auction clearing price.
	OpCalculateClearingPrice OperationName = iota
	// OpRoundStatistics aggregates bid statistics for a round.
	OpRoundStatistics
	// OpDetermineWinners allocates supply to eligible bids.
	OpDetermineWinners
	// OpSupplyDemandCurve builds cumulative demand and constant supply curves.
	OpSupplyDemandCurve
	// OpAverage computes the cohort average of a field.
	OpAverage
	// OpMedian computes the cohort median and quartiles of a field.
	OpMedian
	// OpRanking ranks a target value within the cohort.
	OpRanking
	// OpDistribution buckets a field into five equal-width ranges.
	OpDistribution
	// OpComparison compares a target value against the cohort average.
	OpComparison
	// OpCheckLimit evaluates the investment limit policy.
	OpCheckLimit
	// OpCheckKYC evaluates the KYC validity window policy.
	OpCheckKYC
	// OpCheckEligibility evaluates token eligibility rules.
	OpCheckEligibility
)

var operationNames = map[OperationName]string{
	OpCalculateClearingPrice: "calculateClearingPrice",
	OpRoundStatistics:        "getRoundStatistics",
	OpDetermineWinners:       "determineWinners",
	OpSupplyDemandCurve:      "getSupplyDemandCurve",
	OpAverage:                "average",
	OpMedian:                 "median",
	OpRanking:                "ranking",
	OpDistribution:           "distribution",
	OpComparison:             "comparison",
	OpCheckLimit:             "checkLimit",
	OpCheckKYC:               "checkKYC",
	OpCheckEligibility:       "checkEligibility",
}

var operationsByName = func() map[string]OperationName {
	m := make(map[string]OperationName, len(operationNames))
	for op, name := range operationNames {
		m[name] = op
	}
	return m
}()

// ParseOperation maps a wire-level operation string onto the enum.
func ParseOperation(name string) (OperationName, error) {
	op, ok := operationsByName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedOperation, name)
	}
	return op, nil
}

// String returns the wire-level name of the operation.
func (op OperationName) String() string {
	name, ok := operationNames[op]
	if !ok {
		return fmt.Sprintf("operation(%d)", int(op))
	}
	return name
}

// IsAggregate reports whether the operation discloses a cohort statistic
// and is therefore subject to the k-anonymity gate.
func (op OperationName) IsAggregate() bool {
	switch op {
	case OpAverage, OpMedian, OpRanking, OpDistribution, OpComparison:
		return true
	}
	return false
}
