// Package settlement is the entry point decision engines and the tick
// orchestrator use to register agents and settle transactions.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"monetary_core/internal/credit"
	"monetary_core/internal/domain"
	"monetary_core/internal/engine"
	"monetary_core/internal/ledger"
	"monetary_core/internal/registry"
)

var (
	ErrUnsupportedSchema = errors.New("unsupported agent state schema")
	ErrTickRegression    = errors.New("tick moved backwards")
)

// AgentFactory builds the non-financial side of a new agent.
type AgentFactory interface {
	Create(ctx context.Context, id domain.AgentID, req domain.AgentRegistrationRequest) error
}

type AgentFactoryFunc func(ctx context.Context, id domain.AgentID, req domain.AgentRegistrationRequest) error

func (f AgentFactoryFunc) Create(ctx context.Context, id domain.AgentID, req domain.AgentRegistrationRequest) error {
	return f(ctx, id, req)
}

type AgentRegistry interface {
	Register(ctx context.Context, agent registry.Agent) error
	Unregister(ctx context.Context, id domain.AgentID) error
	Exists(ctx context.Context, id domain.AgentID) bool
}

type AgentStateReader interface {
	AgentState(ctx context.Context, id domain.AgentID) (domain.AgentStateDTO, error)
}

type LifecycleManager interface {
	Deactivate(ctx context.Context, id domain.AgentID, reason domain.DeactivationReason, tick int64) error
}

type Dependencies struct {
	Ledger       *ledger.Ledger
	Book         *credit.Book
	Engine       *engine.Engine
	Registry     AgentRegistry
	Factory      AgentFactory
	States       AgentStateReader
	Lifecycle    LifecycleManager
	FirstAgentID domain.AgentID
	Logger       *slog.Logger
}

// Facade is the single writer of the ledger and loan book. The ledger keeps
// one journal stack, so every mutating call holds mu for its whole duration.
type Facade struct {
	ledger    *ledger.Ledger
	book      *credit.Book
	engine    *engine.Engine
	registry  AgentRegistry
	factory   AgentFactory
	states    AgentStateReader
	lifecycle LifecycleManager
	firstID   domain.AgentID
	nextID    domain.AgentID
	mu        sync.RWMutex
	logger    *slog.Logger
}

func New(deps Dependencies) *Facade {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	first := deps.FirstAgentID
	if first <= 0 {
		first = 1000
	}

	return &Facade{
		ledger:    deps.Ledger,
		book:      deps.Book,
		engine:    deps.Engine,
		registry:  deps.Registry,
		factory:   deps.Factory,
		states:    deps.States,
		lifecycle: deps.Lifecycle,
		firstID:   first,
		nextID:    first,
		logger:    logger,
	}
}

func (f *Facade) RegisterHousehold(ctx context.Context, req domain.AgentRegistrationRequest) (domain.AgentID, error) {
	req.Kind = domain.KindHousehold
	return f.registerNext(ctx, req, domain.ReasonHouseholdRegistration)
}

func (f *Facade) RegisterFirm(ctx context.Context, req domain.AgentRegistrationRequest) (domain.AgentID, error) {
	req.Kind = domain.KindFirm
	return f.registerNext(ctx, req, domain.ReasonFirmRegistration)
}

// RegisterInstitution opens a bank, government, central bank or system
// account under a well-known id below the sequential range. The central bank
// issues money and therefore starts with none.
func (f *Facade) RegisterInstitution(ctx context.Context, id domain.AgentID, req domain.AgentRegistrationRequest) error {
	switch req.Kind {
	case domain.KindBank, domain.KindGovernment, domain.KindCentralBank, domain.KindSystem:
	default:
		return registrationFailed(fmt.Errorf("kind %q is not an institution", req.Kind))
	}
	if id <= 0 || id >= f.firstID {
		return registrationFailed(fmt.Errorf("institution id %d outside reserved range (0, %d)", id, f.firstID))
	}
	if req.Kind.IsIssuer() && req.InitialCash != 0 {
		return registrationFailed(fmt.Errorf("central bank cannot hold initial cash"))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.register(ctx, id, req, domain.ReasonGenesis)
}

func (f *Facade) registerNext(ctx context.Context, req domain.AgentRegistrationRequest, reason domain.SupplyReason) (domain.AgentID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	if err := f.register(ctx, id, req, reason); err != nil {
		return 0, err
	}
	f.nextID++
	return id, nil
}

// register opens the account, records the injected cash, registers the agent
// and finally builds its non-financial side, as one step. The factory runs
// last so a rejected registration never leaves a created agent behind. The
// caller holds f.mu.
func (f *Facade) register(ctx context.Context, id domain.AgentID, req domain.AgentRegistrationRequest, reason domain.SupplyReason) error {
	if req.InitialCash < 0 {
		return registrationFailed(fmt.Errorf("%w: initial cash %d", domain.ErrInvalidAmount, req.InitialCash))
	}
	if f.factory == nil {
		return registrationFailed(errors.New("agent factory unavailable"))
	}
	if f.registry == nil {
		return registrationFailed(errors.New("agent registry unavailable"))
	}

	j := f.ledger.Begin()
	defer j.Rollback()

	if err := f.ledger.Open(domain.Account{AgentID: id, Kind: req.Kind, Balance: req.InitialCash}); err != nil {
		return registrationFailed(err)
	}
	if req.InitialCash > 0 {
		if err := f.ledger.RecordMonetaryExpansion(req.InitialCash, reason); err != nil {
			return registrationFailed(err)
		}
	}

	agent := registry.Agent{
		ID:             id,
		Kind:           req.Kind,
		RegisteredTick: req.Tick,
		Attributes:     req.Attributes,
	}
	if err := f.registry.Register(ctx, agent); err != nil {
		return registrationFailed(err)
	}
	f.ledger.OnRollback(func() {
		_ = f.registry.Unregister(context.WithoutCancel(ctx), id)
	})

	if err := f.factory.Create(ctx, id, req); err != nil {
		return registrationFailed(err)
	}
	j.Commit()

	f.logger.InfoContext(ctx, "Agent registered",
		slog.Int64("agent_id", int64(id)),
		slog.String("kind", string(req.Kind)),
		slog.Int64("initial_cash", req.InitialCash),
		slog.Int64("tick", req.Tick))
	return nil
}

func registrationFailed(err error) error {
	return fmt.Errorf("%w: %w", domain.ErrAgentRegistrationFailed, err)
}

// ProcessStarvation deactivates the agent when its survival need is
// depleted. Agents the state reader does not know are ignored.
func (f *Facade) ProcessStarvation(ctx context.Context, id domain.AgentID, tick int64) error {
	if f.states == nil || f.lifecycle == nil {
		return errors.New("starvation collaborators not configured")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	state, err := f.states.AgentState(ctx, id)
	if errors.Is(err, domain.ErrUnknownAgent) {
		f.logger.DebugContext(ctx, "Starvation check skipped, unknown agent", slog.Int64("agent_id", int64(id)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read agent state: %w", err)
	}
	if state.SchemaVersion != domain.AgentStateSchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedSchema, state.SchemaVersion)
	}
	if !state.Active || state.Survival > 0 {
		return nil
	}

	return f.teardown(ctx, id, domain.ReasonStarved, tick)
}

// teardown is the mirror of register: the account is closed only if the
// lifecycle collaborator accepts the deactivation. The caller holds f.mu.
func (f *Facade) teardown(ctx context.Context, id domain.AgentID, reason domain.DeactivationReason, tick int64) error {
	j := f.ledger.Begin()
	defer j.Rollback()

	if err := f.ledger.Deactivate(id); err != nil {
		return err
	}
	if err := f.lifecycle.Deactivate(ctx, id, reason, tick); err != nil {
		return fmt.Errorf("lifecycle deactivation failed: %w", err)
	}
	j.Commit()

	f.logger.InfoContext(ctx, "Agent deactivated",
		slog.Int64("agent_id", int64(id)),
		slog.String("reason", string(reason)),
		slog.Int64("tick", tick))
	return nil
}

// Execute checks that every party is registered and hands tx to the engine.
func (f *Facade) Execute(ctx context.Context, tx domain.Transaction) domain.TransactionResult {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, id := range tx.Agents() {
		if f.registry == nil || !f.registry.Exists(ctx, id) {
			return domain.Failed(tx.ID, fmt.Errorf("%w: agent %d is not registered", domain.ErrUnknownAgent, id))
		}
	}
	return f.engine.Apply(ctx, tx)
}

func (f *Facade) VoidLoan(ctx context.Context, loanID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.book.Void(loanID)
}

func (f *Facade) ServiceLoans(ctx context.Context, tick int64) []credit.ServicingEvent {
	f.mu.Lock()
	events := f.book.ServiceLoans(tick)
	f.mu.Unlock()

	for _, ev := range events {
		if ev.Type == credit.EventDefault {
			f.logger.WarnContext(ctx, "Loan defaulted",
				slog.String("loan_id", ev.LoanID),
				slog.Int64("borrower_id", int64(ev.BorrowerID)),
				slog.Int64("amount", ev.Amount))
		}
	}
	return events
}

func (f *Facade) AdvanceTick(tick int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if current := f.ledger.Tick(); tick < current {
		return fmt.Errorf("%w: %d -> %d", ErrTickRegression, current, tick)
	}
	f.ledger.SetTick(tick)
	return nil
}

// Consistent runs fn while no mutation is in flight, so everything fn reads
// across the ledger and the book belongs to the same committed state.
func (f *Facade) Consistent(fn func()) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn()
}
