package tools

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const premiumPrompt = `Based on the following life insurance rating criteria, calculate an estimated premium.

Premium Rating Criteria:
{criteria}

Calculate for:
- Age: {age} years
- Coverage Amount: ${coverage}
- Term Length: {term} years
- Smoker: {smoker}
- Health Rating: {health_rating}

Use a base rate of ${base_rate} per $1,000 of coverage per month.
Apply the rating factors from the criteria above.

Provide the calculation in this JSON format:
{{
    "monthly_premium": <calculated amount>,
    "annual_premium": <monthly * 12>,
    "total_term_cost": <annual * term_length>,
    "explanation": "<brief explanation of factors applied>"
}}`

const eligibilityPrompt = `As a life insurance underwriting expert, assess the eligibility for this applicant.

Eligibility Criteria from Knowledge Base:
{criteria}

Applicant Profile:
- Age: {age} years
- Health Conditions: {conditions}
- Smoker: {smoker}
- Occupation: {occupation}
- Desired Coverage: ${coverage}

Provide your assessment in JSON format:
{{
    "eligibility": "<Good/Moderate/Challenging>",
    "likely_approved": <true/false>,
    "issues": ["<list any concerns>"],
    "recommendations": ["<list recommendations>"],
    "reasoning": "<explain your assessment>"
}}`

func newPremiumTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString, schema.UserMessage(premiumPrompt))
}

func newEligibilityTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(schema.FString, schema.UserMessage(eligibilityPrompt))
}
