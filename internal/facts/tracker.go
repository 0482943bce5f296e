package facts

import (
	"fmt"
	"slices"
	"strings"
)

// Confidence is the assessor's confidence that the record is accurate.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// ParseConfidence normalises s, defaulting to low for anything unrecognised.
func ParseConfidence(s string) Confidence {
	switch Confidence(strings.ToLower(strings.TrimSpace(s))) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceMedium:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// Tracker is the completeness assessment recomputed after every turn.
type Tracker struct {
	FieldsFilledCount     int        `json:"fields_filled_count"`
	FieldsTotalCount      int        `json:"fields_total_count"`
	CompletenessRatio     float64    `json:"completeness_ratio"`
	ConfidenceLevel       Confidence `json:"confidence_level"`
	MissingCriticalFields []string   `json:"missing_critical_fields"`
	UncertainFields       []string   `json:"uncertain_fields"`
	UserEmotions          []string   `json:"user_emotions"`
	ReasonNotReady        string     `json:"reason_not_ready,omitempty"`
}

// InitialTracker is the assessment of an empty record: every critical field
// is missing, so a fresh session can never look complete.
func InitialTracker() Tracker {
	return TrackerFromMetrics(Record{}.Metrics())
}

// TrackerFromMetrics builds the deterministic part of an assessment.
func TrackerFromMetrics(m Metrics) Tracker {
	return Tracker{
		FieldsFilledCount:     m.FilledCount,
		FieldsTotalCount:      m.TotalCount,
		CompletenessRatio:     m.Ratio(),
		ConfidenceLevel:       ConfidenceLow,
		MissingCriticalFields: slices.Clone(m.MissingCritical),
	}
}

// Ready reports whether at most maxMissing critical fields remain missing.
func (t Tracker) Ready(maxMissing int) bool {
	return len(t.MissingCriticalFields) <= maxMissing
}

// Validate checks the tracker invariants.
func (t Tracker) Validate() error {
	if t.CompletenessRatio < 0 || t.CompletenessRatio > 1 {
		return fmt.Errorf("completeness_ratio %v outside [0,1]", t.CompletenessRatio)
	}
	if t.FieldsFilledCount < 0 || t.FieldsFilledCount > t.FieldsTotalCount {
		return fmt.Errorf("fields_filled_count %d outside [0,%d]", t.FieldsFilledCount, t.FieldsTotalCount)
	}
	for _, name := range t.MissingCriticalFields {
		if !IsCritical(name) {
			return fmt.Errorf("missing_critical_fields contains non-critical field %q", name)
		}
	}
	switch t.ConfidenceLevel {
	case ConfidenceLow, ConfidenceMedium, ConfidenceHigh:
	default:
		return fmt.Errorf("unknown confidence_level %q", t.ConfidenceLevel)
	}
	return nil
}

// KnownFields filters names down to recognised field names, dropping
// duplicates and keeping first-seen order.
func KnownFields(names []string) []string {
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if IsField(n) && !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}
