package models

import (
	"database/sql/driver"
	"fmt"
)

// FailureMode classifies why a response went wrong. The set is closed:
// downstream routing switches over it exhaustively, so adding a mode is a
// compile-time-checked change.
type FailureMode int

const (
	FailureEncoding FailureMode = iota
	FailureRetrieval
	FailureDiscrimination
	FailureIntegration
	FailureExecutive
	FailureFatigue
)

var failureModeNames = [...]string{
	FailureEncoding:       "encoding",
	FailureRetrieval:      "retrieval",
	FailureDiscrimination: "discrimination",
	FailureIntegration:    "integration",
	FailureExecutive:      "executive",
	FailureFatigue:        "fatigue",
}

func (m FailureMode) String() string {
	if int(m) < 0 || int(m) >= len(failureModeNames) {
		return fmt.Sprintf("FailureMode(%d)", int(m))
	}
	return failureModeNames[m]
}

// ParseFailureMode maps a stored name back to the enum. Unknown names map
// to FailureRetrieval, the least destructive assumption.
func ParseFailureMode(s string) FailureMode {
	for i, n := range failureModeNames {
		if n == s {
			return FailureMode(i)
		}
	}
	return FailureRetrieval
}

// Value implements driver.Valuer; modes are stored by name.
func (m FailureMode) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements sql.Scanner.
func (m *FailureMode) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*m = ParseFailureMode(v)
		return nil
	case []byte:
		*m = ParseFailureMode(string(v))
		return nil
	case int64:
		*m = FailureMode(v)
		return nil
	default:
		return fmt.Errorf("cannot scan %T into FailureMode", src)
	}
}
