package models

import (
	"errors"
	"fmt"
)

var (
	ErrConfig           = errors.New("invalid configuration")
	ErrInsufficientData = errors.New("insufficient data")
	ErrNotReady         = errors.New("not ready")
)

// ConfigError rejects hyperparameters or input shapes before any state is
// created.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// InsufficientDataError means the chart is too short for the requested
// estimate length.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d points, need more than %d", e.Have, e.Need)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// NotReadyError is returned when an operation runs before its prerequisite.
type NotReadyError struct {
	Op      string
	Missing string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s: %s not ready", e.Op, e.Missing)
}

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }
