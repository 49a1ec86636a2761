package models

import (
	"fmt"
	"math"
)

type Condition string

const (
	ConditionGreaterThan        Condition = ">"
	ConditionLessThan           Condition = "<"
	ConditionGreaterThanOrEqual Condition = ">="
	ConditionLessThanOrEqual    Condition = "<="
	ConditionEqual              Condition = "=="
)

// equalityTolerance is the absolute tolerance used by "==".
const equalityTolerance = 1e-6

func (c Condition) Validate() error {
	switch c {
	case ConditionGreaterThan, ConditionLessThan, ConditionGreaterThanOrEqual, ConditionLessThanOrEqual, ConditionEqual:
		return nil
	}

	return fmt.Errorf("%w: %q", UnknownConditionErr, string(c))
}

func (c Condition) Compare(value, threshold float64) bool {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}

	switch c {
	case ConditionGreaterThan:
		return value > threshold
	case ConditionLessThan:
		return value < threshold
	case ConditionGreaterThanOrEqual:
		return value >= threshold
	case ConditionLessThanOrEqual:
		return value <= threshold
	case ConditionEqual:
		return math.Abs(value-threshold) < equalityTolerance
	}

	return false
}
