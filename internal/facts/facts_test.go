package facts

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ptr[T any](v T) *T { return &v }

func TestFieldTableCoversEveryJSONField(t *testing.T) {
	raw, err := json.Marshal(Record{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Nil pointers are omitted, so this checks the list fields.
	var listed map[string]json.RawMessage
	if err := json.Unmarshal(raw, &listed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for name := range listed {
		if !IsField(name) {
			t.Errorf("json field %q missing from field table", name)
		}
	}
	if got := len(FieldNames()); got < 50 {
		t.Errorf("expected at least 50 fields, got %d", got)
	}
	seen := map[string]bool{}
	for _, n := range FieldNames() {
		if seen[n] {
			t.Errorf("duplicate field %q", n)
		}
		seen[n] = true
	}
	for _, c := range CriticalFields() {
		if !IsField(c) {
			t.Errorf("critical field %q is not a record field", c)
		}
	}
}

func TestMergeKeepsKnownFactsWhenUpdateIsSilent(t *testing.T) {
	current := Record{
		MatterType:      ptr("family"),
		PartiesInvolved: []string{"client", "former partner"},
		UrgencyScore:    ptr(6),
	}

	merged := current.Merge(Record{})

	if diff := cmp.Diff(current, merged); diff != "" {
		t.Errorf("empty update changed the record (-want +got):\n%s", diff)
	}
}

func TestMergeLastWriteWinsPerField(t *testing.T) {
	current := Record{
		MatterType:       ptr("family"),
		DesiredOutcome:   ptr("shared care"),
		KeyDates:         []string{"2024-01-01 separation"},
		ChildrenInvolved: ptr(false),
	}
	update := Record{
		MatterSubtype:    ptr("parenting arrangements"),
		DesiredOutcome:   ptr("equal shared care, alternating weeks"),
		KeyDates:         []string{"2024-01-01 separation", "2024-06-10 mediation"},
		ChildrenInvolved: ptr(true),
	}

	got := current.Merge(update)

	want := Record{
		MatterType:       ptr("family"),
		MatterSubtype:    ptr("parenting arrangements"),
		DesiredOutcome:   ptr("equal shared care, alternating weeks"),
		KeyDates:         []string{"2024-01-01 separation", "2024-06-10 mediation"},
		ChildrenInvolved: ptr(true),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("merge mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeExplicitEmptyOnlyFillsUnknownFields(t *testing.T) {
	current := Record{
		FundingConcerns: []string{"cannot afford a barrister"},
		RiskDetails:     ptr("threats by text message"),
	}
	update := Record{
		FundingConcerns: []string{},
		RiskDetails:     ptr("  "),
		DealBreakers:    []string{},
	}

	got := current.Merge(update)

	if diff := cmp.Diff([]string{"cannot afford a barrister"}, got.FundingConcerns); diff != "" {
		t.Errorf("explicit empty overwrote a known list:\n%s", diff)
	}
	if got.RiskDetails == nil || *got.RiskDetails != "threats by text message" {
		t.Errorf("blank text overwrote a known value: %v", got.RiskDetails)
	}
	if got.DealBreakers == nil || len(got.DealBreakers) != 0 {
		t.Errorf("expected explicitly empty deal_breakers, got %#v", got.DealBreakers)
	}
	if got.IsSet("deal_breakers") {
		t.Error("an explicitly empty list should not count as filled")
	}
}

func TestMergeIsMonotonicOverRepeatedExtractions(t *testing.T) {
	passes := []Record{
		{MatterType: ptr("family")},
		{IncomeSources: []string{"wages"}},
		{},
		{MatterType: nil, RiskLevel: ptr("medium")},
		{IncomeSources: nil, RiskLevel: ptr("high")},
	}

	var r Record
	filled := map[string]bool{}
	for i, p := range passes {
		r = r.Merge(p)
		for name := range filled {
			if !r.IsSet(name) {
				t.Fatalf("pass %d cleared previously set field %q", i, name)
			}
		}
		for _, name := range r.Metrics().FilledFields {
			filled[name] = true
		}
	}
	if *r.RiskLevel != "high" {
		t.Errorf("expected latest risk level, got %q", *r.RiskLevel)
	}
}

func TestMergeDoesNotAliasUpdate(t *testing.T) {
	update := Record{PartiesInvolved: []string{"client"}, MatterType: ptr("tenancy")}
	got := Record{}.Merge(update)

	update.PartiesInvolved[0] = "changed"
	*update.MatterType = "changed"

	if got.PartiesInvolved[0] != "client" || *got.MatterType != "tenancy" {
		t.Error("merged record shares storage with the update")
	}
}

func TestMetrics(t *testing.T) {
	r := Record{
		MatterType:           ptr("employment"),
		PartiesInvolved:      []string{"client", "employer"},
		UrgentActionRequired: ptr(false),
		ClientName:           ptr(""),
	}
	m := r.Metrics()

	if m.FilledCount != 3 {
		t.Errorf("FilledCount = %d, want 3", m.FilledCount)
	}
	if m.TotalCount != len(FieldNames()) {
		t.Errorf("TotalCount = %d, want %d", m.TotalCount, len(FieldNames()))
	}
	for _, name := range []string{"matter_type", "parties_involved", "urgent_action_required"} {
		for _, missing := range m.MissingCritical {
			if missing == name {
				t.Errorf("%s reported missing although set", name)
			}
		}
	}
	if len(m.MissingCritical) != len(CriticalFields())-3 {
		t.Errorf("MissingCritical = %v", m.MissingCritical)
	}
	if m.Ratio() <= 0 || m.Ratio() >= 1 {
		t.Errorf("Ratio = %v", m.Ratio())
	}
}

func TestRecordJSONOmitsUnknownFields(t *testing.T) {
	r := Record{MatterType: ptr("family"), DealBreakers: []string{}}
	out := r.JSON()
	if !strings.Contains(out, `"matter_type": "family"`) {
		t.Errorf("missing matter_type in %s", out)
	}
	if !strings.Contains(out, `"deal_breakers": []`) {
		t.Errorf("explicitly empty list should be kept in %s", out)
	}
	if strings.Contains(out, "null") {
		t.Errorf("unknown fields should be dropped: %s", out)
	}
}

func TestRecordValidate(t *testing.T) {
	if err := (Record{UrgencyScore: ptr(11)}).Validate(); err == nil {
		t.Error("expected out-of-range urgency score to fail")
	}
	if err := (Record{UrgencyScore: ptr(7)}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInitialTrackerIsNeverReady(t *testing.T) {
	tr := InitialTracker()
	if tr.Ready(0) {
		t.Error("fresh tracker must not be ready")
	}
	if diff := cmp.Diff(CriticalFields(), tr.MissingCriticalFields); diff != "" {
		t.Errorf("missing critical fields (-want +got):\n%s", diff)
	}
	if err := tr.Validate(); err != nil {
		t.Errorf("initial tracker invalid: %v", err)
	}
}

func TestTrackerValidate(t *testing.T) {
	tests := []struct {
		name    string
		tracker Tracker
		wantErr bool
	}{
		{"ok", Tracker{FieldsFilledCount: 1, FieldsTotalCount: 2, CompletenessRatio: 0.5, ConfidenceLevel: ConfidenceMedium}, false},
		{"ratio", Tracker{CompletenessRatio: 1.5, ConfidenceLevel: ConfidenceLow}, true},
		{"non critical", Tracker{MissingCriticalFields: []string{"client_name"}, ConfidenceLevel: ConfidenceLow}, true},
		{"confidence", Tracker{ConfidenceLevel: "certain"}, true},
	}
	for _, tt := range tests {
		err := tt.tracker.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}

func TestParseConfidence(t *testing.T) {
	if ParseConfidence(" HIGH ") != ConfidenceHigh {
		t.Error("expected high")
	}
	if ParseConfidence("very sure") != ConfidenceLow {
		t.Error("unknown values should map to low")
	}
}

func TestKnownFields(t *testing.T) {
	got := KnownFields([]string{"risk_level", "nonsense", "risk_level", " key_dates "})
	if diff := cmp.Diff([]string{"risk_level", "key_dates"}, got); diff != "" {
		t.Errorf("KnownFields (-want +got):\n%s", diff)
	}
}

func TestCloneIsDeep(t *testing.T) {
	r := Record{MatterType: ptr("family"), KeyDates: []string{"2024-01"}, DealBreakers: []string{}}
	c := r.Clone()
	if diff := cmp.Diff(r, c); diff != "" {
		t.Errorf("clone differs (-want +got):\n%s", diff)
	}
	*c.MatterType = "tenancy"
	c.KeyDates[0] = "changed"
	if *r.MatterType != "family" || r.KeyDates[0] != "2024-01" {
		t.Error("clone shares storage with the original")
	}
}
