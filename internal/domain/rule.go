package domain

type RuleType string

const (
	RuleTypeRisk       RuleType = "risk"
	RuleTypeCompliance RuleType = "compliance"
	RuleTypeLiquidity  RuleType = "liquidity"
)

// Rule is an ad-hoc bank rule evaluated per leg during the commit phase.
type Rule struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        RuleType `json:"type"`
	Description string   `json:"description"`
	Condition   string   `json:"condition"`
	Action      string   `json:"action"`
	Priority    int      `json:"priority"`
	IsActive    bool     `json:"is_active"`
	Version     int      `json:"version"`
}
