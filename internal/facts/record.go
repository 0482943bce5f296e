// Package facts defines the structured record of case facts gathered during
// intake and the completeness assessment derived from it.
package facts

import (
	"encoding/json"
	"fmt"
)

// Child describes a child affected by the matter.
type Child struct {
	Name         string `json:"name,omitempty"`
	Age          int    `json:"age,omitempty"`
	LivesWith    string `json:"lives_with,omitempty"`
	SpecialNeeds string `json:"special_needs,omitempty"`
}

// Event is a dated occurrence in the client's account.
type Event struct {
	Date        string `json:"date,omitempty"`
	Description string `json:"description"`
}

// Asset is property, an account, or another item of value.
type Asset struct {
	Description string `json:"description"`
	Value       string `json:"value,omitempty"`
	Ownership   string `json:"ownership,omitempty" jsonschema:"enum=client,enum=other_party,enum=joint,enum=unknown"`
}

// Debt is a liability held by either party.
type Debt struct {
	Description string `json:"description"`
	Amount      string `json:"amount,omitempty"`
	Responsible string `json:"responsible,omitempty" jsonschema:"enum=client,enum=other_party,enum=joint,enum=unknown"`
}

// Record is the canonical set of case facts. Every field is independently
// optional: a nil pointer or nil slice means nothing is known yet, while a
// non-nil empty slice records that the client said there is nothing.
//
// List fields marshal without omitempty so the distinction survives a
// round trip through JSON.
//
// Records are treated as values. Merge returns a new Record and never writes
// through the receiver's pointers, so copies may share them safely.
type Record struct {
	// Matter
	MatterType        *string `json:"matter_type,omitempty" jsonschema_description:"Area of law, e.g. family, employment, tenancy, criminal"`
	MatterSubtype     *string `json:"matter_subtype,omitempty" jsonschema_description:"Narrower classification, e.g. parenting arrangements, unfair dismissal"`
	MatterDescription *string `json:"matter_description,omitempty" jsonschema_description:"One or two sentence summary of the problem in the client's terms"`

	// Parties
	ClientName               *string  `json:"client_name,omitempty"`
	PartiesInvolved          []string `json:"parties_involved" jsonschema_description:"People or organisations involved and their role"`
	RelationshipToOtherParty *string  `json:"relationship_to_other_party,omitempty"`
	RelationshipDuration     *string  `json:"relationship_duration,omitempty"`
	ChildrenInvolved         *bool    `json:"children_involved,omitempty"`
	ChildrenDetails          []Child  `json:"children_details"`
	OtherPartyRepresented    *bool    `json:"other_party_represented,omitempty"`
	RepresentedByLawyer      *bool    `json:"represented_by_lawyer,omitempty"`

	// Timeline
	IncidentStartDate *string  `json:"incident_start_date,omitempty"`
	KeyDates          []string `json:"key_dates" jsonschema_description:"Important dates, each with a short label"`
	KeyEvents         []Event  `json:"key_events"`
	DeadlineDates     []string `json:"deadline_dates" jsonschema_description:"Court, limitation or filing deadlines"`
	UpcomingDeadlines []string `json:"upcoming_deadlines"`

	// Legal status
	CurrentLegalProceedings *bool    `json:"current_legal_proceedings,omitempty"`
	CourtOrdersInPlace      []string `json:"court_orders_in_place"`
	PreviousLegalAction     []string `json:"previous_legal_action"`

	// Jurisdiction
	StateTerritory     *string `json:"state_territory,omitempty"`
	MatterLocation     *string `json:"matter_location,omitempty"`
	InterstateElements *bool   `json:"interstate_elements,omitempty"`

	// Financial
	IncomeSources          []string `json:"income_sources"`
	EstimatedMonthlyIncome *string  `json:"estimated_monthly_income,omitempty"`
	ClientEmploymentStatus *string  `json:"client_employment_status,omitempty"`
	ClientAnnualIncome     *string  `json:"client_annual_income,omitempty"`
	OtherPartyIncome       *string  `json:"other_party_income,omitempty"`
	PropertyAssets         []Asset  `json:"property_assets"`
	FinancialAccounts      []Asset  `json:"financial_accounts"`
	DebtsLiabilities       []Debt   `json:"debts_liabilities"`
	EstimatedClaimValue    *string  `json:"estimated_claim_value,omitempty"`
	AbilityToPayLegalFees  *string  `json:"ability_to_pay_legal_fees,omitempty"`
	FundingConcerns        []string `json:"funding_concerns"`
	RiskOfAssetDissipation *bool    `json:"risk_of_asset_dissipation,omitempty"`

	// Risk
	RiskLevel               *string  `json:"risk_level,omitempty" jsonschema:"enum=low,enum=medium,enum=high,enum=critical"`
	RisksIdentified         []string `json:"risks_identified"`
	DomesticViolencePresent *bool    `json:"domestic_violence_present,omitempty"`
	ImmediateSafetyRisk     *bool    `json:"immediate_safety_risk,omitempty"`
	RiskDetails             *string  `json:"risk_details,omitempty"`
	SubstanceAbuseIssues    *bool    `json:"substance_abuse_issues,omitempty"`
	MentalHealthConcerns    *bool    `json:"mental_health_concerns,omitempty"`

	// Evidence
	DocumentationAvailable []string `json:"documentation_available"`
	WitnessesAvailable     *bool    `json:"witnesses_available,omitempty"`
	EvidenceQuality        *string  `json:"evidence_quality,omitempty" jsonschema:"enum=weak,enum=moderate,enum=strong"`

	// Goals
	DesiredOutcome         *string  `json:"desired_outcome,omitempty"`
	PrimaryConcerns        []string `json:"primary_concerns"`
	DealBreakers           []string `json:"deal_breakers"`
	WillingnessToNegotiate *string  `json:"willingness_to_negotiate,omitempty"`

	// Urgency
	UrgentActionRequired *bool `json:"urgent_action_required,omitempty"`
	UrgencyScore         *int  `json:"urgency_score,omitempty" jsonschema:"minimum=1,maximum=10"`

	// Meta
	CulturalConsiderations       *string  `json:"cultural_considerations,omitempty"`
	DisabilityAccessibilityNeeds *string  `json:"disability_accessibility_needs,omitempty"`
	PreferredContactMethod       *string  `json:"preferred_contact_method,omitempty"`
	CommunicationBreakdown       *bool    `json:"communication_breakdown,omitempty"`
	RecommendedNextSteps         []string `json:"recommended_next_steps"`
	AdditionalNotes              *string  `json:"additional_notes,omitempty"`
}

// Merge returns a copy of r updated field by field from update. A field is
// only replaced when update carries a value for it; a nil in update never
// clears a known fact, and an explicitly empty value is only recorded for a
// field that was previously unknown.
func (r Record) Merge(update Record) Record {
	out := r
	for _, f := range fieldTable {
		f.merge(&out, &update)
	}
	return out
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	return Record{}.Merge(r)
}

// Validate checks value ranges the schema cannot express on its own.
func (r Record) Validate() error {
	if r.UrgencyScore != nil && (*r.UrgencyScore < 1 || *r.UrgencyScore > 10) {
		return fmt.Errorf("urgency_score %d out of range 1..10", *r.UrgencyScore)
	}
	for _, c := range r.ChildrenDetails {
		if c.Age < 0 {
			return fmt.Errorf("child age %d is negative", c.Age)
		}
	}
	return nil
}

// IsSet reports whether the named field holds a non-empty value. Unknown
// names report false.
func (r Record) IsSet(name string) bool {
	f, ok := fieldIndex[name]
	if !ok {
		return false
	}
	return f.isSet(&r)
}

// Metrics summarises which fields are filled.
func (r Record) Metrics() Metrics {
	m := Metrics{TotalCount: len(fieldTable)}
	for _, f := range fieldTable {
		if f.isSet(&r) {
			m.FilledCount++
			m.FilledFields = append(m.FilledFields, f.name)
		}
	}
	for _, name := range criticalFields {
		if !fieldIndex[name].isSet(&r) {
			m.MissingCritical = append(m.MissingCritical, name)
		}
	}
	return m
}

// JSON renders the known facts as indented JSON for prompts and reports.
// Unknown fields are left out.
func (r Record) JSON() string {
	raw, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return "{}"
	}
	for k, v := range m {
		if string(v) == "null" {
			delete(m, k)
		}
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Metrics is the deterministic view of a Record used to assess completion.
type Metrics struct {
	FilledCount     int      `json:"fields_filled_count"`
	TotalCount      int      `json:"fields_total_count"`
	FilledFields    []string `json:"filled_fields"`
	MissingCritical []string `json:"missing_critical_fields"`
}

// Ratio is FilledCount/TotalCount, or 0 for an empty schema.
func (m Metrics) Ratio() float64 {
	if m.TotalCount == 0 {
		return 0
	}
	return float64(m.FilledCount) / float64(m.TotalCount)
}
