package models

import "errors"

var (
	// ErrRuleNotFound is returned when an alert rule id does not exist.
	ErrRuleNotFound = errors.New("alert rule not found")

	// ErrAlertNotFound is returned when an alert id does not exist.
	ErrAlertNotFound = errors.New("alert not found")
)
