// Package domain contains the core domain models for the strategy analyser.
package domain

import (
	"strconv"
	"strings"
)

// Direction is the side of a trade.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// IsValid returns true if the direction is LONG or SHORT.
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// Sign returns +1 for long trades and -1 for short trades.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// String returns the string representation of the direction.
func (d Direction) String() string {
	return string(d)
}

// DirectionFromString converts a log token to a Direction.
// Unknown tokens map to LONG.
func DirectionFromString(s string) Direction {
	d := Direction(strings.ToUpper(strings.TrimSpace(s)))
	if d.IsValid() {
		return d
	}
	return DirectionLong
}

// EventKind identifies an auxiliary run event.
type EventKind string

const (
	EventKindTPNearMiss   EventKind = "tp_near_miss"
	EventKindFillNearMiss EventKind = "fill_near_miss"
	EventKindSLAdjustment EventKind = "sl_adjustment"
)

// IsValid returns true if the kind is a known EventKind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventKindTPNearMiss, EventKindFillNearMiss, EventKindSLAdjustment:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k EventKind) String() string {
	return string(k)
}

// ParamType is the inferred type of a strategy parameter value.
type ParamType string

const (
	ParamTypeInt    ParamType = "int"
	ParamTypeFloat  ParamType = "float"
	ParamTypeBool   ParamType = "bool"
	ParamTypeString ParamType = "string"
)

// InferParamType infers the parameter type from its textual value.
func InferParamType(value string) ParamType {
	v := strings.TrimSpace(value)
	if v == "" {
		return ParamTypeString
	}
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return ParamTypeInt
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return ParamTypeFloat
	}
	switch strings.ToLower(v) {
	case "true", "false":
		return ParamTypeBool
	}
	return ParamTypeString
}
