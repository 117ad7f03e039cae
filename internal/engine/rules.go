package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"sync"

	"monetary_core/internal/domain"
	"monetary_core/internal/repository"
)

// AccountLookup resolves the kind of the agent a leg touches.
type AccountLookup interface {
	Account(id domain.AgentID) (domain.Account, error)
}

// RuleEngine evaluates ad-hoc bank rules against each leg during the commit
// phase. It is a CommitHook: a triggered block rule fails the leg.
type RuleEngine struct {
	ruleRepo repository.RuleRepository
	accounts AccountLookup
	logger   *slog.Logger
	mu       sync.Mutex
	cache    []*domain.Rule
	cached   bool
}

type Condition struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

type RuleAction struct {
	Type    string                 `json:"type"`
	Params  map[string]interface{} `json:"params"`
	Message string                 `json:"message"`
}

const (
	ActionBlock  = "block"
	ActionFlag   = "flag"
	ActionNotify = "notify"
)

type RuleResult struct {
	RuleID    string
	RuleName  string
	Priority  int
	Triggered bool
	Action    RuleAction
}

// legFacts is what a condition can see about a leg.
type legFacts struct {
	amount    int64
	txType    string
	legKind   string
	agentKind string
	agentID   int64
	tick      int64
	metadata  map[string]string
}

func NewRuleEngine(ruleRepo repository.RuleRepository, accounts AccountLookup, logger *slog.Logger) *RuleEngine {
	if logger == nil {
		logger = slog.Default()
	}

	return &RuleEngine{
		ruleRepo: ruleRepo,
		accounts: accounts,
		logger:   logger,
	}
}

func (e *RuleEngine) BeforeLeg(ctx context.Context, tx domain.Transaction, index int, leg domain.Leg) error {
	results, err := e.EvaluateRules(ctx, tx, leg)
	if err != nil {
		return fmt.Errorf("rule evaluation failed: %w", err)
	}

	for _, result := range results {
		if err := e.ExecuteAction(ctx, result, tx, index); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateRules returns the triggered rules for leg, highest priority first.
func (e *RuleEngine) EvaluateRules(ctx context.Context, tx domain.Transaction, leg domain.Leg) ([]RuleResult, error) {
	rules, err := e.getActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	facts := legFacts{
		amount:   leg.Amount,
		txType:   string(tx.Type),
		legKind:  string(leg.Kind),
		agentID:  int64(leg.AgentID),
		tick:     tx.Tick,
		metadata: tx.Metadata,
	}
	if e.accounts != nil {
		if acc, err := e.accounts.Account(leg.AgentID); err == nil {
			facts.agentKind = string(acc.Kind)
		}
	}

	var results []RuleResult
	for _, rule := range rules {
		result, err := e.evaluateRule(rule, facts)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to evaluate rule",
				slog.String("rule_id", rule.ID),
				slog.String("error", err.Error()))
			continue
		}

		if result.Triggered {
			results = append(results, result)
			e.logger.DebugContext(ctx, "Rule triggered",
				slog.String("rule_id", rule.ID),
				slog.String("rule_name", rule.Name),
				slog.String("transaction_id", tx.ID))
		}
	}

	slices.SortStableFunc(results, func(a, b RuleResult) int {
		return b.Priority - a.Priority
	})

	return results, nil
}

func (e *RuleEngine) evaluateRule(rule *domain.Rule, facts legFacts) (RuleResult, error) {
	result := RuleResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Priority: rule.Priority,
	}

	var condition Condition
	if err := json.Unmarshal([]byte(rule.Condition), &condition); err != nil {
		return result, fmt.Errorf("invalid condition JSON: %w", err)
	}

	triggered, err := checkCondition(condition, facts)
	if err != nil {
		return result, fmt.Errorf("failed to check condition: %w", err)
	}
	result.Triggered = triggered

	if triggered {
		if err := json.Unmarshal([]byte(rule.Action), &result.Action); err != nil {
			return result, fmt.Errorf("invalid action JSON: %w", err)
		}
	}

	return result, nil
}

func checkCondition(condition Condition, facts legFacts) (bool, error) {
	switch condition.Field {
	case "amount":
		return checkNumericCondition(condition, float64(facts.amount))
	case "agent_id":
		return checkNumericCondition(condition, float64(facts.agentID))
	case "tick":
		return checkNumericCondition(condition, float64(facts.tick))
	case "type":
		return checkStringCondition(condition, facts.txType)
	case "leg":
		return checkStringCondition(condition, facts.legKind)
	case "agent_kind":
		return checkStringCondition(condition, facts.agentKind)
	case "metadata":
		return checkMetadataCondition(condition, facts.metadata)
	default:
		return false, fmt.Errorf("unknown field: %s", condition.Field)
	}
}

func checkNumericCondition(condition Condition, value float64) (bool, error) {
	targetValue, ok := condition.Value.(float64)
	if !ok {
		return false, fmt.Errorf("invalid value type for numeric field: %v", condition.Value)
	}

	switch condition.Operator {
	case ">":
		return value > targetValue, nil
	case ">=":
		return value >= targetValue, nil
	case "<":
		return value < targetValue, nil
	case "<=":
		return value <= targetValue, nil
	case "==":
		return value == targetValue, nil
	case "!=":
		return value != targetValue, nil
	default:
		return false, fmt.Errorf("unknown operator: %s", condition.Operator)
	}
}

func checkStringCondition(condition Condition, value string) (bool, error) {
	if condition.Operator == "in" {
		values, ok := condition.Value.([]interface{})
		if !ok {
			return false, fmt.Errorf("invalid value for 'in' operator")
		}
		return slices.ContainsFunc(values, func(v interface{}) bool {
			s, ok := v.(string)
			return ok && s == value
		}), nil
	}

	targetValue, ok := condition.Value.(string)
	if !ok {
		return false, fmt.Errorf("invalid value type for string field: %v", condition.Value)
	}

	switch condition.Operator {
	case "==":
		return value == targetValue, nil
	case "!=":
		return value != targetValue, nil
	case "matches":
		re, err := regexp.Compile(targetValue)
		if err != nil {
			return false, fmt.Errorf("invalid pattern %q: %w", targetValue, err)
		}
		return re.MatchString(value), nil
	default:
		return false, fmt.Errorf("unknown operator: %s", condition.Operator)
	}
}

func checkMetadataCondition(condition Condition, metadata map[string]string) (bool, error) {
	conditions, ok := condition.Value.(map[string]interface{})
	if !ok {
		return false, fmt.Errorf("invalid value type for metadata condition")
	}

	for key, expectedValue := range conditions {
		actualValue, exists := metadata[key]
		if !exists {
			return false, nil
		}

		if actualValue != fmt.Sprintf("%v", expectedValue) {
			return false, nil
		}
	}

	return true, nil
}

func (e *RuleEngine) getActiveRules(ctx context.Context) ([]*domain.Rule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cached {
		return e.cache, nil
	}
	if e.ruleRepo == nil {
		return nil, nil
	}

	rules, err := e.ruleRepo.GetActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	e.cache = rules
	e.cached = true
	return rules, nil
}

// InvalidateCache forces the next evaluation to reload rules from the repository.
func (e *RuleEngine) InvalidateCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = nil
	e.cached = false
}

func (e *RuleEngine) ExecuteAction(ctx context.Context, result RuleResult, tx domain.Transaction, index int) error {
	action := result.Action
	reason, _ := action.Params["reason"].(string)
	if reason == "" {
		reason = action.Message
	}

	switch action.Type {
	case ActionBlock:
		e.logger.WarnContext(ctx, "Leg blocked by rule",
			slog.String("transaction_id", tx.ID),
			slog.String("rule_id", result.RuleID),
			slog.Int("leg", index),
			slog.String("reason", reason))
		return fmt.Errorf("%w: rule %s: %s", domain.ErrRuleBlocked, result.RuleID, reason)

	case ActionFlag:
		e.logger.WarnContext(ctx, "Transaction flagged",
			slog.String("transaction_id", tx.ID),
			slog.String("rule_id", result.RuleID),
			slog.Int("leg", index),
			slog.String("reason", reason))
		return nil

	case ActionNotify:
		channel, _ := action.Params["channel"].(string)
		e.logger.InfoContext(ctx, "Notification sent",
			slog.String("channel", channel),
			slog.String("transaction_id", tx.ID),
			slog.String("rule_id", result.RuleID),
			slog.String("message", action.Message))
		return nil

	default:
		return fmt.Errorf("unknown action type: %q", action.Type)
	}
}
