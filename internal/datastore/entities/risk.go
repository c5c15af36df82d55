package entities

import (
	"database/sql/driver"
	"fmt"
)

// RiskLevel is an ordered flood risk category. The integer ordering is the
// severity ordering; values persist as their canonical string form.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskLevelNames = [...]string{"LOW", "MEDIUM", "HIGH", "CRITICAL"}

// String returns the canonical name for the risk level.
func (r RiskLevel) String() string {
	if r < RiskLow || r > RiskCritical {
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
	return riskLevelNames[r]
}

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	return r >= RiskLow && r <= RiskCritical
}

// AtLeast reports whether r meets or exceeds threshold in severity.
func (r RiskLevel) AtLeast(threshold RiskLevel) bool {
	return r >= threshold
}

// ParseRiskLevel converts a canonical name to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for i := range riskLevelNames {
		if riskLevelNames[i] == s {
			return RiskLevel(i), nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk level %q", s)
}

// Value implements driver.Valuer so gorm persists the string form.
func (r RiskLevel) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot persist invalid risk level %d", int(r))
	}
	return r.String(), nil
}

// Scan implements sql.Scanner.
func (r *RiskLevel) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseRiskLevel(v)
		if err != nil {
			return err
		}
		*r = parsed
		return nil
	case []byte:
		return r.Scan(string(v))
	case int64:
		level := RiskLevel(v)
		if !level.Valid() {
			return fmt.Errorf("risk level out of range: %d", v)
		}
		*r = level
		return nil
	default:
		return fmt.Errorf("cannot scan %T into RiskLevel", src)
	}
}

// MarshalJSON renders the canonical name.
func (r RiskLevel) MarshalJSON() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("cannot marshal invalid risk level %d", int(r))
	}
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON accepts the canonical name.
func (r *RiskLevel) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("risk level must be a JSON string, got %s", b)
	}
	parsed, err := ParseRiskLevel(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// RiskLevelForProbability maps an ensemble probability to a risk level using
// the fixed ascending thresholds: <0.25 LOW, <0.5 MEDIUM, <0.75 HIGH,
// otherwise CRITICAL.
func RiskLevelForProbability(p float64) RiskLevel {
	switch {
	case p < 0.25:
		return RiskLow
	case p < 0.5:
		return RiskMedium
	case p < 0.75:
		return RiskHigh
	default:
		return RiskCritical
	}
}
