// Package completeness defines the home-buyer profile record extracted from a
// conversation and the rule that decides whether it is complete.
package completeness

import "strings"

// Record is the flat profile extracted from the whole conversation. An empty
// string means the user has not provided that field yet.
type Record struct {
	Province                     string `json:"province"`
	CityOrRegion                 string `json:"city_or_region"`
	Timeline                     string `json:"timeline"`
	DaydreamHomeType             string `json:"daydream_home_type"`
	DaydreamBedrooms             string `json:"daydream_bedrooms"`
	DaydreamMustHaves            string `json:"daydream_must_haves"`
	PainPoints                   string `json:"pain_points"`
	HouseholdContributors        string `json:"household_contributors"`
	Contributors1EmploymentType  string `json:"contributors_1_employment_type"`
	Contributors1TenureYearsBand string `json:"contributors_1_tenure_years_band"`
	Contributors2EmploymentType  string `json:"contributors_2_employment_type"`
	Contributors2TenureYearsBand string `json:"contributors_2_tenure_years_band"`
	Contributors3EmploymentType  string `json:"contributors_3_employment_type"`
	Contributors3TenureYearsBand string `json:"contributors_3_tenure_years_band"`
	Contributors4EmploymentType  string `json:"contributors_4_employment_type"`
	Contributors4TenureYearsBand string `json:"contributors_4_tenure_years_band"`
	IncomeBand                   string `json:"income_band"`
	CreditBand                   string `json:"credit_band"`
	MonthlyDebtPaymentsBand      string `json:"monthly_debt_payments_band"`
	DownPaymentBand              string `json:"down_payment_band"`
	EligibilityAge18Plus         string `json:"eligibility_age_18_plus"`
	EligibilityCitizenshipStatus string `json:"eligibility_citizenship_status"`
	EligibilityFirstTimeStatus   string `json:"eligibility_first_time_status"`
	EligibilitySpouseOwned       string `json:"eligibility_spouse_owned"`
	EligibilityPropertyType      string `json:"eligibility_property_type"`
	EligibilityOccupancyPlan     string `json:"eligibility_occupancy_plan"`
	EligibilityDisabilityStatus  string `json:"eligibility_disability_status"`
	EligibilityPriorLTTRebate    string `json:"eligibility_prior_LTT_rebate"`
	ContactPermission            string `json:"contact_permission"`

	// CompletedInfo is derived by Evaluate; it is never set from outside.
	CompletedInfo bool `json:"completed_info"`
}

// Group says how a field takes part in the completeness test.
type Group int

const (
	Required Group = iota
	Optional
	Excluded
)

// Field describes one string field of a Record.
type Field struct {
	Name  string
	Group Group
	get   func(*Record) *string
}

// Value returns the field's value in rec.
func (f Field) Value(rec *Record) string { return *f.get(rec) }

// Fields lists every string field in wire order.
var Fields = []Field{
	{"province", Required, func(r *Record) *string { return &r.Province }},
	{"city_or_region", Required, func(r *Record) *string { return &r.CityOrRegion }},
	{"timeline", Required, func(r *Record) *string { return &r.Timeline }},
	{"daydream_home_type", Required, func(r *Record) *string { return &r.DaydreamHomeType }},
	{"daydream_bedrooms", Required, func(r *Record) *string { return &r.DaydreamBedrooms }},
	{"daydream_must_haves", Required, func(r *Record) *string { return &r.DaydreamMustHaves }},
	{"pain_points", Required, func(r *Record) *string { return &r.PainPoints }},
	{"household_contributors", Required, func(r *Record) *string { return &r.HouseholdContributors }},
	{"contributors_1_employment_type", Required, func(r *Record) *string { return &r.Contributors1EmploymentType }},
	{"contributors_1_tenure_years_band", Required, func(r *Record) *string { return &r.Contributors1TenureYearsBand }},
	{"contributors_2_employment_type", Optional, func(r *Record) *string { return &r.Contributors2EmploymentType }},
	{"contributors_2_tenure_years_band", Optional, func(r *Record) *string { return &r.Contributors2TenureYearsBand }},
	{"contributors_3_employment_type", Optional, func(r *Record) *string { return &r.Contributors3EmploymentType }},
	{"contributors_3_tenure_years_band", Optional, func(r *Record) *string { return &r.Contributors3TenureYearsBand }},
	{"contributors_4_employment_type", Optional, func(r *Record) *string { return &r.Contributors4EmploymentType }},
	{"contributors_4_tenure_years_band", Optional, func(r *Record) *string { return &r.Contributors4TenureYearsBand }},
	{"income_band", Required, func(r *Record) *string { return &r.IncomeBand }},
	{"credit_band", Required, func(r *Record) *string { return &r.CreditBand }},
	{"monthly_debt_payments_band", Required, func(r *Record) *string { return &r.MonthlyDebtPaymentsBand }},
	{"down_payment_band", Required, func(r *Record) *string { return &r.DownPaymentBand }},
	{"eligibility_age_18_plus", Required, func(r *Record) *string { return &r.EligibilityAge18Plus }},
	{"eligibility_citizenship_status", Required, func(r *Record) *string { return &r.EligibilityCitizenshipStatus }},
	{"eligibility_first_time_status", Required, func(r *Record) *string { return &r.EligibilityFirstTimeStatus }},
	{"eligibility_spouse_owned", Required, func(r *Record) *string { return &r.EligibilitySpouseOwned }},
	{"eligibility_property_type", Required, func(r *Record) *string { return &r.EligibilityPropertyType }},
	{"eligibility_occupancy_plan", Required, func(r *Record) *string { return &r.EligibilityOccupancyPlan }},
	{"eligibility_disability_status", Required, func(r *Record) *string { return &r.EligibilityDisabilityStatus }},
	{"eligibility_prior_LTT_rebate", Required, func(r *Record) *string { return &r.EligibilityPriorLTTRebate }},
	{"contact_permission", Excluded, func(r *Record) *string { return &r.ContactPermission }},
}

// Missing returns the names of required fields that are still empty.
func (r *Record) Missing() []string {
	var missing []string
	for _, f := range Fields {
		if f.Group == Required && strings.TrimSpace(f.Value(r)) == "" {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Evaluate recomputes CompletedInfo from the required fields and returns it.
func (r *Record) Evaluate() bool {
	r.CompletedInfo = len(r.Missing()) == 0
	return r.CompletedInfo
}

// Values returns the string fields keyed by wire name.
func (r *Record) Values() map[string]string {
	values := make(map[string]string, len(Fields))
	for _, f := range Fields {
		values[f.Name] = f.Value(r)
	}
	return values
}

// Set assigns a field by wire name. It reports false for unknown names.
func (r *Record) Set(name, value string) bool {
	for _, f := range Fields {
		if f.Name == name {
			*f.get(r) = value
			return true
		}
	}
	return false
}
