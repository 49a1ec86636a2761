package models

import "fmt"

var InvalidTickErr = fmt.Errorf("invalid tick")
var OutOfOrderWindowErr = fmt.Errorf("window does not advance the series")
var UnknownMetricErr = fmt.Errorf("unknown metric")
var UnknownConditionErr = fmt.Errorf("unknown condition")
var InvalidRuleErr = fmt.Errorf("invalid alert rule")
var RuleNotFoundErr = fmt.Errorf("alert rule not found")
var InsufficientDataErr = fmt.Errorf("insufficient data")
var SeriesLengthMismatchErr = fmt.Errorf("window and z-score series lengths differ")

type ErrorDTO struct {
	Type string `json:"type"`
	Msg  string `json:"message"`
}
