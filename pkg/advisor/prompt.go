package advisor

import (
	"strings"
	"text/template"
)

var promptTemplate = template.Must(template.New("prompt").Parse(`Act as an experienced Indian financial advisor and provide personalized advice based on:

CIBIL Score: {{.Score}}
Risk Profile: {{.Profile.Name}} ({{.Profile.Description}})
Suitable Instruments: {{.Instruments}}
Financial Goals: {{.Goals}}
Monthly Income: {{.Income}}
Monthly Expenses: {{.Expenses}}
Monthly Savings Potential: {{.Savings}}
{{- if .Spending}}
Spending by Category:
{{- range .Spending}}
- {{.}}
{{- end}}
{{- end}}

Format your response as follows:

1. CREDIT PROFILE ANALYSIS
• Credit Score Status
• Improvement Steps
• Credit Management

2. INVESTMENT STRATEGY
• Recommended Portfolio
• Tax-Saving Options
• Investment Timeline

3. FINANCIAL GOALS PLANNING
• Short-term Goals (0-2 years)
• Medium-term Goals (2-5 years)
• Long-term Goals (5+ years)

4. RISK MANAGEMENT
• Insurance Needs
• Emergency Fund
• Debt Management

5. ACTION ITEMS
• Immediate Steps (Next 30 days)
• Short-term Actions (Next 3-6 months)
• Regular Review Points`))

type promptData struct {
	Score       int
	Profile     RiskProfile
	Instruments string
	Goals       string
	Income      string
	Expenses    string
	Savings     string
	Spending    []string
}

// BuildPrompt renders the instruction sent to the language model.
func BuildPrompt(score int, goals string, profile RiskProfile, analysis Analysis) (string, error) {
	data := promptData{
		Score:       score,
		Profile:     profile,
		Instruments: strings.Join(profile.Options, ", "),
		Goals:       strings.TrimSpace(goals),
		Income:      FormatINR(analysis.Income),
		Expenses:    FormatINR(analysis.Expenses),
		Savings:     FormatINR(analysis.SavingsPotential),
	}
	for _, category := range analysis.Categories() {
		data.Spending = append(data.Spending, category+": "+FormatINR(analysis.SpendingByCategory[category]))
	}

	var b strings.Builder
	if err := promptTemplate.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// CleanAdvice strips markdown emphasis from model output and puts every
// bullet on its own indented line.
func CleanAdvice(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "* *", "•")

	var sections []string
	for _, section := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(section) == "" {
			continue
		}
		sections = append(sections, strings.ReplaceAll(section, "•", "\n  •"))
	}
	return strings.Join(sections, "\n\n")
}
