package completeness

// Instructions is the system prompt for the extraction call.
const Instructions = `You review the whole conversation between Dorthy and a prospective first-time home buyer in Ontario, Canada.

Extract the profile fields below from every earlier user and assistant message.
- Fill a field only with what the user said or clearly implied. Never invent values.
- Leave a field as "" when it was never mentioned.
- province is always "ON".
- Do not ask questions and do not add commentary. Return exactly one JSON object.

Fields:
city_or_region, timeline ("0-6 months", "6-12 months", "1-2 years"),
eligibility_age_18_plus, eligibility_citizenship_status, eligibility_first_time_status,
eligibility_spouse_owned, eligibility_property_type, eligibility_occupancy_plan,
eligibility_disability_status, eligibility_prior_LTT_rebate,
daydream_home_type, daydream_bedrooms, daydream_must_haves, pain_points,
household_contributors, contributors_N_employment_type and contributors_N_tenure_years_band for N = 1..4,
income_band (under 50K, 50-80K, 80-120K, 120-200K, 200K+),
credit_band (below 600, 600-659, 660-724, 725-759, 760+),
monthly_debt_payments_band (under 10%, 10-30%, 30-50%, over 50%),
down_payment_band (under 5%, 5-10%, 10-20%, over 20%),
contact_permission.

Set completed_info to true only when every field has a value, except contributors 2 to 4 and contact_permission, which may stay empty.`
