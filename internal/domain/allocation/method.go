package allocation

import (
	"strings"

	"tradecouncil/pkg/errors"
)

// Method selects how signals and the risk model become raw weights
type Method string

const (
	MethodStrategic          Method = "strategic"
	MethodTactical           Method = "tactical"
	MethodRiskParity         Method = "risk_parity"
	MethodMaxDiversification Method = "max_diversification"
	MethodMinVariance        Method = "min_variance"
	MethodMeanReversion      Method = "mean_reversion"
	MethodMomentum           Method = "momentum"
)

// Methods lists every allocation method
var Methods = []Method{
	MethodStrategic,
	MethodTactical,
	MethodRiskParity,
	MethodMaxDiversification,
	MethodMinVariance,
	MethodMeanReversion,
	MethodMomentum,
}

// Valid checks if allocation method is known
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// Optimized reports whether the method runs the numerical optimizer
func (m Method) Optimized() bool {
	return m == MethodRiskParity || m == MethodMaxDiversification || m == MethodMinVariance
}

// String returns string representation
func (m Method) String() string {
	return string(m)
}

// ParseMethod parses an allocation method name, case-insensitive
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", errors.Wrapf(errors.ErrUnknownMethod, "allocation method %q", s)
	}
	return m, nil
}
