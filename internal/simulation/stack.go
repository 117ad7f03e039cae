// Package simulation wires the settlement core together and drives a
// scripted economy over it.
package simulation

import (
	"context"
	"fmt"
	"log/slog"

	"monetary_core/internal/config"
	"monetary_core/internal/credit"
	"monetary_core/internal/domain"
	"monetary_core/internal/engine"
	"monetary_core/internal/ledger"
	"monetary_core/internal/monitor"
	"monetary_core/internal/registry"
	"monetary_core/internal/repository/memory"
	"monetary_core/internal/settlement"
	"monetary_core/pkg/crypto"
	"monetary_core/pkg/metrics"
)

// Well-known institution ids, all below FirstAgentID.
const (
	BankID        domain.AgentID = 1
	CentralBankID domain.AgentID = 2
	GovernmentID  domain.AgentID = 3
	SystemID      domain.AgentID = 4
)

type Stack struct {
	Config   *config.Config
	Ledger   *ledger.Ledger
	Book     *credit.Book
	Engine   *engine.Engine
	Rules    *memory.RuleRepository
	RuleHook *engine.RuleEngine
	Results  *memory.ResultRepository
	Registry *registry.Memory
	Facade   *settlement.Facade
	Monitor  *monitor.Monitor
	Metrics  *metrics.MetricsCollector
	Signer   *crypto.Signer
	logger   *slog.Logger
}

// CreditConfig maps cfg onto the loan book settings for bank.
func CreditConfig(cfg *config.Config) credit.Config {
	cc := credit.DefaultConfig(BankID)
	cc.CentralBankID = CentralBankID
	cc.DefaultTerms = domain.LoanTerms{
		AnnualRate: cfg.LoanRate(),
		TermTicks:  cfg.DefaultLoanTermTicks,
	}
	cc.TicksPerYear = cfg.TicksPerYear
	cc.DepositMatchTolerance = cfg.DepositMatchTolerance
	return cc
}

// Build assembles every component and registers the institutions.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Stack{
		Config:   cfg,
		Ledger:   ledger.New(logger),
		Rules:    memory.NewRuleRepository(),
		Results:  memory.NewResultRepository(),
		Registry: registry.NewMemory(),
		Metrics:  metrics.NewMetricsCollector(logger),
		Signer:   crypto.NewSigner(cfg.FingerprintKey, logger),
		logger:   logger,
	}

	s.Book = credit.New(s.Ledger, CreditConfig(cfg), logger)
	s.Engine = engine.New(s.Ledger, s.Book, s.Results, logger)
	s.Engine.SetRecorder(s.Metrics)
	s.RuleHook = engine.NewRuleEngine(s.Rules, s.Ledger, logger)
	s.Engine.Use(s.RuleHook)

	s.Monitor = monitor.New(s.Ledger, s.Book, cfg.ConservationTolerance, logger)
	s.Monitor.SetExporter(s.Metrics)

	s.Facade = settlement.New(settlement.Dependencies{
		Ledger:       s.Ledger,
		Book:         s.Book,
		Engine:       s.Engine,
		Registry:     s.Registry,
		Factory:      settlement.AgentFactoryFunc(s.createAgent),
		States:       s.Registry,
		Lifecycle:    s.Registry,
		FirstAgentID: domain.AgentID(cfg.FirstAgentID),
		Logger:       logger,
	})

	for _, inst := range []struct {
		id   domain.AgentID
		kind domain.AgentKind
	}{
		{BankID, domain.KindBank},
		{CentralBankID, domain.KindCentralBank},
		{GovernmentID, domain.KindGovernment},
		{SystemID, domain.KindSystem},
	} {
		req := domain.AgentRegistrationRequest{Kind: inst.kind}
		if err := s.Facade.RegisterInstitution(ctx, inst.id, req); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", inst.kind, err)
		}
	}

	if err := s.seedRules(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// createAgent is the factory hook for newly registered agents. Survival is
// owned by the registry and starts full.
func (s *Stack) createAgent(ctx context.Context, id domain.AgentID, req domain.AgentRegistrationRequest) error {
	s.logger.DebugContext(ctx, "Creating agent",
		slog.Int64("agent_id", int64(id)),
		slog.String("kind", string(req.Kind)))
	return nil
}

func (s *Stack) seedRules(ctx context.Context) error {
	rules := []*domain.Rule{
		{
			ID:          "large-payment",
			Name:        "Large payment",
			Type:        domain.RuleTypeRisk,
			Description: "Flag single legs above 50,000 pennies",
			Condition:   `{"field":"amount","operator":">","value":50000}`,
			Action:      `{"type":"flag"}`,
			Priority:    10,
			IsActive:    true,
		},
		{
			ID:          "loan-origination",
			Name:        "Loan origination",
			Type:        domain.RuleTypeCompliance,
			Description: "Notify on every loan origination",
			Condition:   `{"field":"leg","operator":"==","value":"originate"}`,
			Action:      `{"type":"notify"}`,
			Priority:    5,
			IsActive:    true,
		},
	}
	for _, r := range rules {
		if err := s.Rules.Save(ctx, r); err != nil {
			return fmt.Errorf("failed to seed rule %s: %w", r.ID, err)
		}
	}
	return nil
}

// Fingerprint digests the current ledger and loan book.
func (s *Stack) Fingerprint() string {
	var fp string
	s.Facade.Consistent(func() { fp = s.Monitor.Fingerprint(s.Signer) })
	return fp
}
