package facts

import (
	"slices"
	"strings"
)

// Category groups related fields.
type Category string

const (
	CategoryMatter       Category = "matter"
	CategoryParties      Category = "parties"
	CategoryTimeline     Category = "timeline"
	CategoryLegalStatus  Category = "legal_status"
	CategoryJurisdiction Category = "jurisdiction"
	CategoryFinancial    Category = "financial"
	CategoryRisk         Category = "risk"
	CategoryEvidence     Category = "evidence"
	CategoryGoals        Category = "goals"
	CategoryUrgency      Category = "urgency"
	CategoryMeta         Category = "meta"
)

// criticalFields must be filled before intake can be considered complete.
var criticalFields = []string{
	"matter_type",
	"key_dates",
	"parties_involved",
	"desired_outcome",
	"income_sources",
	"estimated_monthly_income",
	"funding_concerns",
	"risk_level",
	"risks_identified",
	"urgent_action_required",
	"urgency_score",
	"deadline_dates",
	"recommended_next_steps",
}

type field struct {
	name     string
	category Category
	isSet    func(r *Record) bool
	merge    func(dst, src *Record)
}

// fieldTable enumerates every Record field once. Merge, IsSet and Metrics
// are all driven from it.
var fieldTable = []field{
	// Matter
	{"matter_type", CategoryMatter,
		func(r *Record) bool { return hasText(r.MatterType) },
		func(d, s *Record) { mergeText(&d.MatterType, s.MatterType) }},
	{"matter_subtype", CategoryMatter,
		func(r *Record) bool { return hasText(r.MatterSubtype) },
		func(d, s *Record) { mergeText(&d.MatterSubtype, s.MatterSubtype) }},
	{"matter_description", CategoryMatter,
		func(r *Record) bool { return hasText(r.MatterDescription) },
		func(d, s *Record) { mergeText(&d.MatterDescription, s.MatterDescription) }},

	// Parties
	{"client_name", CategoryParties,
		func(r *Record) bool { return hasText(r.ClientName) },
		func(d, s *Record) { mergeText(&d.ClientName, s.ClientName) }},
	{"parties_involved", CategoryParties,
		func(r *Record) bool { return len(r.PartiesInvolved) > 0 },
		func(d, s *Record) { mergeList(&d.PartiesInvolved, s.PartiesInvolved) }},
	{"relationship_to_other_party", CategoryParties,
		func(r *Record) bool { return hasText(r.RelationshipToOtherParty) },
		func(d, s *Record) { mergeText(&d.RelationshipToOtherParty, s.RelationshipToOtherParty) }},
	{"relationship_duration", CategoryParties,
		func(r *Record) bool { return hasText(r.RelationshipDuration) },
		func(d, s *Record) { mergeText(&d.RelationshipDuration, s.RelationshipDuration) }},
	{"children_involved", CategoryParties,
		func(r *Record) bool { return r.ChildrenInvolved != nil },
		func(d, s *Record) { mergeValue(&d.ChildrenInvolved, s.ChildrenInvolved) }},
	{"children_details", CategoryParties,
		func(r *Record) bool { return len(r.ChildrenDetails) > 0 },
		func(d, s *Record) { mergeList(&d.ChildrenDetails, s.ChildrenDetails) }},
	{"other_party_represented", CategoryParties,
		func(r *Record) bool { return r.OtherPartyRepresented != nil },
		func(d, s *Record) { mergeValue(&d.OtherPartyRepresented, s.OtherPartyRepresented) }},
	{"represented_by_lawyer", CategoryParties,
		func(r *Record) bool { return r.RepresentedByLawyer != nil },
		func(d, s *Record) { mergeValue(&d.RepresentedByLawyer, s.RepresentedByLawyer) }},

	// Timeline
	{"incident_start_date", CategoryTimeline,
		func(r *Record) bool { return hasText(r.IncidentStartDate) },
		func(d, s *Record) { mergeText(&d.IncidentStartDate, s.IncidentStartDate) }},
	{"key_dates", CategoryTimeline,
		func(r *Record) bool { return len(r.KeyDates) > 0 },
		func(d, s *Record) { mergeList(&d.KeyDates, s.KeyDates) }},
	{"key_events", CategoryTimeline,
		func(r *Record) bool { return len(r.KeyEvents) > 0 },
		func(d, s *Record) { mergeList(&d.KeyEvents, s.KeyEvents) }},
	{"deadline_dates", CategoryTimeline,
		func(r *Record) bool { return len(r.DeadlineDates) > 0 },
		func(d, s *Record) { mergeList(&d.DeadlineDates, s.DeadlineDates) }},
	{"upcoming_deadlines", CategoryTimeline,
		func(r *Record) bool { return len(r.UpcomingDeadlines) > 0 },
		func(d, s *Record) { mergeList(&d.UpcomingDeadlines, s.UpcomingDeadlines) }},

	// Legal status
	{"current_legal_proceedings", CategoryLegalStatus,
		func(r *Record) bool { return r.CurrentLegalProceedings != nil },
		func(d, s *Record) { mergeValue(&d.CurrentLegalProceedings, s.CurrentLegalProceedings) }},
	{"court_orders_in_place", CategoryLegalStatus,
		func(r *Record) bool { return len(r.CourtOrdersInPlace) > 0 },
		func(d, s *Record) { mergeList(&d.CourtOrdersInPlace, s.CourtOrdersInPlace) }},
	{"previous_legal_action", CategoryLegalStatus,
		func(r *Record) bool { return len(r.PreviousLegalAction) > 0 },
		func(d, s *Record) { mergeList(&d.PreviousLegalAction, s.PreviousLegalAction) }},

	// Jurisdiction
	{"state_territory", CategoryJurisdiction,
		func(r *Record) bool { return hasText(r.StateTerritory) },
		func(d, s *Record) { mergeText(&d.StateTerritory, s.StateTerritory) }},
	{"matter_location", CategoryJurisdiction,
		func(r *Record) bool { return hasText(r.MatterLocation) },
		func(d, s *Record) { mergeText(&d.MatterLocation, s.MatterLocation) }},
	{"interstate_elements", CategoryJurisdiction,
		func(r *Record) bool { return r.InterstateElements != nil },
		func(d, s *Record) { mergeValue(&d.InterstateElements, s.InterstateElements) }},

	// Financial
	{"income_sources", CategoryFinancial,
		func(r *Record) bool { return len(r.IncomeSources) > 0 },
		func(d, s *Record) { mergeList(&d.IncomeSources, s.IncomeSources) }},
	{"estimated_monthly_income", CategoryFinancial,
		func(r *Record) bool { return hasText(r.EstimatedMonthlyIncome) },
		func(d, s *Record) { mergeText(&d.EstimatedMonthlyIncome, s.EstimatedMonthlyIncome) }},
	{"client_employment_status", CategoryFinancial,
		func(r *Record) bool { return hasText(r.ClientEmploymentStatus) },
		func(d, s *Record) { mergeText(&d.ClientEmploymentStatus, s.ClientEmploymentStatus) }},
	{"client_annual_income", CategoryFinancial,
		func(r *Record) bool { return hasText(r.ClientAnnualIncome) },
		func(d, s *Record) { mergeText(&d.ClientAnnualIncome, s.ClientAnnualIncome) }},
	{"other_party_income", CategoryFinancial,
		func(r *Record) bool { return hasText(r.OtherPartyIncome) },
		func(d, s *Record) { mergeText(&d.OtherPartyIncome, s.OtherPartyIncome) }},
	{"property_assets", CategoryFinancial,
		func(r *Record) bool { return len(r.PropertyAssets) > 0 },
		func(d, s *Record) { mergeList(&d.PropertyAssets, s.PropertyAssets) }},
	{"financial_accounts", CategoryFinancial,
		func(r *Record) bool { return len(r.FinancialAccounts) > 0 },
		func(d, s *Record) { mergeList(&d.FinancialAccounts, s.FinancialAccounts) }},
	{"debts_liabilities", CategoryFinancial,
		func(r *Record) bool { return len(r.DebtsLiabilities) > 0 },
		func(d, s *Record) { mergeList(&d.DebtsLiabilities, s.DebtsLiabilities) }},
	{"estimated_claim_value", CategoryFinancial,
		func(r *Record) bool { return hasText(r.EstimatedClaimValue) },
		func(d, s *Record) { mergeText(&d.EstimatedClaimValue, s.EstimatedClaimValue) }},
	{"ability_to_pay_legal_fees", CategoryFinancial,
		func(r *Record) bool { return hasText(r.AbilityToPayLegalFees) },
		func(d, s *Record) { mergeText(&d.AbilityToPayLegalFees, s.AbilityToPayLegalFees) }},
	{"funding_concerns", CategoryFinancial,
		func(r *Record) bool { return len(r.FundingConcerns) > 0 },
		func(d, s *Record) { mergeList(&d.FundingConcerns, s.FundingConcerns) }},
	{"risk_of_asset_dissipation", CategoryFinancial,
		func(r *Record) bool { return r.RiskOfAssetDissipation != nil },
		func(d, s *Record) { mergeValue(&d.RiskOfAssetDissipation, s.RiskOfAssetDissipation) }},

	// Risk
	{"risk_level", CategoryRisk,
		func(r *Record) bool { return hasText(r.RiskLevel) },
		func(d, s *Record) { mergeText(&d.RiskLevel, s.RiskLevel) }},
	{"risks_identified", CategoryRisk,
		func(r *Record) bool { return len(r.RisksIdentified) > 0 },
		func(d, s *Record) { mergeList(&d.RisksIdentified, s.RisksIdentified) }},
	{"domestic_violence_present", CategoryRisk,
		func(r *Record) bool { return r.DomesticViolencePresent != nil },
		func(d, s *Record) { mergeValue(&d.DomesticViolencePresent, s.DomesticViolencePresent) }},
	{"immediate_safety_risk", CategoryRisk,
		func(r *Record) bool { return r.ImmediateSafetyRisk != nil },
		func(d, s *Record) { mergeValue(&d.ImmediateSafetyRisk, s.ImmediateSafetyRisk) }},
	{"risk_details", CategoryRisk,
		func(r *Record) bool { return hasText(r.RiskDetails) },
		func(d, s *Record) { mergeText(&d.RiskDetails, s.RiskDetails) }},
	{"substance_abuse_issues", CategoryRisk,
		func(r *Record) bool { return r.SubstanceAbuseIssues != nil },
		func(d, s *Record) { mergeValue(&d.SubstanceAbuseIssues, s.SubstanceAbuseIssues) }},
	{"mental_health_concerns", CategoryRisk,
		func(r *Record) bool { return r.MentalHealthConcerns != nil },
		func(d, s *Record) { mergeValue(&d.MentalHealthConcerns, s.MentalHealthConcerns) }},

	// Evidence
	{"documentation_available", CategoryEvidence,
		func(r *Record) bool { return len(r.DocumentationAvailable) > 0 },
		func(d, s *Record) { mergeList(&d.DocumentationAvailable, s.DocumentationAvailable) }},
	{"witnesses_available", CategoryEvidence,
		func(r *Record) bool { return r.WitnessesAvailable != nil },
		func(d, s *Record) { mergeValue(&d.WitnessesAvailable, s.WitnessesAvailable) }},
	{"evidence_quality", CategoryEvidence,
		func(r *Record) bool { return hasText(r.EvidenceQuality) },
		func(d, s *Record) { mergeText(&d.EvidenceQuality, s.EvidenceQuality) }},

	// Goals
	{"desired_outcome", CategoryGoals,
		func(r *Record) bool { return hasText(r.DesiredOutcome) },
		func(d, s *Record) { mergeText(&d.DesiredOutcome, s.DesiredOutcome) }},
	{"primary_concerns", CategoryGoals,
		func(r *Record) bool { return len(r.PrimaryConcerns) > 0 },
		func(d, s *Record) { mergeList(&d.PrimaryConcerns, s.PrimaryConcerns) }},
	{"deal_breakers", CategoryGoals,
		func(r *Record) bool { return len(r.DealBreakers) > 0 },
		func(d, s *Record) { mergeList(&d.DealBreakers, s.DealBreakers) }},
	{"willingness_to_negotiate", CategoryGoals,
		func(r *Record) bool { return hasText(r.WillingnessToNegotiate) },
		func(d, s *Record) { mergeText(&d.WillingnessToNegotiate, s.WillingnessToNegotiate) }},

	// Urgency
	{"urgent_action_required", CategoryUrgency,
		func(r *Record) bool { return r.UrgentActionRequired != nil },
		func(d, s *Record) { mergeValue(&d.UrgentActionRequired, s.UrgentActionRequired) }},
	{"urgency_score", CategoryUrgency,
		func(r *Record) bool { return r.UrgencyScore != nil },
		func(d, s *Record) { mergeValue(&d.UrgencyScore, s.UrgencyScore) }},

	// Meta
	{"cultural_considerations", CategoryMeta,
		func(r *Record) bool { return hasText(r.CulturalConsiderations) },
		func(d, s *Record) { mergeText(&d.CulturalConsiderations, s.CulturalConsiderations) }},
	{"disability_accessibility_needs", CategoryMeta,
		func(r *Record) bool { return hasText(r.DisabilityAccessibilityNeeds) },
		func(d, s *Record) { mergeText(&d.DisabilityAccessibilityNeeds, s.DisabilityAccessibilityNeeds) }},
	{"preferred_contact_method", CategoryMeta,
		func(r *Record) bool { return hasText(r.PreferredContactMethod) },
		func(d, s *Record) { mergeText(&d.PreferredContactMethod, s.PreferredContactMethod) }},
	{"communication_breakdown", CategoryMeta,
		func(r *Record) bool { return r.CommunicationBreakdown != nil },
		func(d, s *Record) { mergeValue(&d.CommunicationBreakdown, s.CommunicationBreakdown) }},
	{"recommended_next_steps", CategoryMeta,
		func(r *Record) bool { return len(r.RecommendedNextSteps) > 0 },
		func(d, s *Record) { mergeList(&d.RecommendedNextSteps, s.RecommendedNextSteps) }},
	{"additional_notes", CategoryMeta,
		func(r *Record) bool { return hasText(r.AdditionalNotes) },
		func(d, s *Record) { mergeText(&d.AdditionalNotes, s.AdditionalNotes) }},
}

var fieldIndex = func() map[string]field {
	idx := make(map[string]field, len(fieldTable))
	for _, f := range fieldTable {
		idx[f.name] = f
	}
	return idx
}()

// FieldNames returns every field name in declaration order.
func FieldNames() []string {
	names := make([]string, len(fieldTable))
	for i, f := range fieldTable {
		names[i] = f.name
	}
	return names
}

// CriticalFields returns the fields required for completion.
func CriticalFields() []string {
	return slices.Clone(criticalFields)
}

// IsCritical reports whether name is on the critical list.
func IsCritical(name string) bool {
	return slices.Contains(criticalFields, name)
}

// IsField reports whether name is a known field.
func IsField(name string) bool {
	_, ok := fieldIndex[name]
	return ok
}

// CategoryOf returns the category of the named field.
func CategoryOf(name string) (Category, bool) {
	f, ok := fieldIndex[name]
	return f.category, ok
}

// Label turns a field name into words for prompts: "key_dates" -> "key dates".
func Label(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func hasText(p *string) bool {
	return p != nil && strings.TrimSpace(*p) != ""
}

func mergeText(dst **string, src *string) {
	if src == nil {
		return
	}
	if strings.TrimSpace(*src) == "" && *dst != nil {
		return
	}
	v := *src
	*dst = &v
}

func mergeValue[T any](dst **T, src *T) {
	if src == nil {
		return
	}
	v := *src
	*dst = &v
}

func mergeList[T any](dst *[]T, src []T) {
	if src == nil {
		return
	}
	if len(src) == 0 && *dst != nil {
		return
	}
	*dst = slices.Clone(src)
	if *dst == nil {
		*dst = []T{}
	}
}
