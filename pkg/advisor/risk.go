package advisor

const (
	MinCreditScore = 300
	MaxCreditScore = 900
)

type RiskProfile struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
}

var (
	Conservative = RiskProfile{
		Name:        "Conservative",
		Description: "Low-risk investments suitable for maintaining financial stability",
		Options: []string{
			"Fixed Deposits (FDs)",
			"Post Office Schemes",
			"Government Bonds",
			"Public Provident Fund (PPF)",
			"Blue-chip Stock SIPs",
		},
	}
	Moderate = RiskProfile{
		Name:        "Moderate",
		Description: "Balanced mix of secure and growth-oriented investments",
		Options: []string{
			"Mutual Funds (Large-cap)",
			"National Pension System (NPS)",
			"Corporate Bonds",
			"REITs",
			"Index Funds",
		},
	}
	Aggressive = RiskProfile{
		Name:        "Aggressive",
		Description: "Growth-focused investments with higher risk tolerance",
		Options: []string{
			"Direct Equity",
			"Small & Mid-cap Funds",
			"International Funds",
			"Sectoral Funds",
			"Alternative Investments",
		},
	}
)

// RiskProfileFor maps a CIBIL score to the risk appetite it supports.
func RiskProfileFor(score int) RiskProfile {
	switch {
	case score >= 750:
		return Aggressive
	case score >= 650:
		return Moderate
	default:
		return Conservative
	}
}
