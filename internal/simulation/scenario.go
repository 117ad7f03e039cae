package simulation

import (
	"context"
	"fmt"
	"log/slog"

	"monetary_core/internal/credit"
	"monetary_core/internal/domain"
	"monetary_core/internal/logging"
)

// Scenario is a scripted economy: firms pay wages, households buy goods and
// borrow, the government runs a deficit and the central bank trades with the
// bank. Every third household is unemployed and eventually starves.
type Scenario struct {
	Ticks          int64
	Households     int
	Firms          int
	HouseholdCash  int64
	FirmCash       int64
	Wage           int64
	WithholdingPct int64
	Price          int64
	Meal           float64
	Decay          float64
	LoanPrincipal  int64
	LoanEvery      int64
	Installment    int64
	StimulusEvery  int64
	Stimulus       int64
	OMOEvery       int64
	OMOAmount      int64
}

func DefaultScenario(ticks int64) Scenario {
	return Scenario{
		Ticks:          ticks,
		Households:     6,
		Firms:          2,
		HouseholdCash:  2000,
		FirmCash:       50000,
		Wage:           400,
		WithholdingPct: 10,
		Price:          300,
		Meal:           0.3,
		Decay:          0.2,
		LoanPrincipal:  3000,
		LoanEvery:      5,
		Installment:    150,
		StimulusEvery:  10,
		Stimulus:       2000,
		OMOEvery:       7,
		OMOAmount:      5000,
	}
}

type Report struct {
	Ticks        int64            `json:"ticks"`
	Settled      int              `json:"settled"`
	Rejected     int              `json:"rejected"`
	Voided       int              `json:"voided"`
	InterestPaid int64            `json:"interest_paid"`
	Defaults     int              `json:"defaults"`
	Starved      []domain.AgentID `json:"starved"`
	MoneySupply  int64            `json:"money_supply"`
	Fingerprint  string           `json:"fingerprint"`
}

type run struct {
	stack      *Stack
	sc         Scenario
	households []domain.AgentID
	firms      []domain.AgentID
	report     Report
}

// Run registers the scenario's agents and plays it tick by tick. It stops at
// the first conservation violation.
func (s *Stack) Run(ctx context.Context, sc Scenario) (Report, error) {
	r := &run{stack: s, sc: sc}
	ctx = logging.WithLogger(ctx, s.logger)
	if err := r.populate(ctx); err != nil {
		return r.report, err
	}

	for tick := int64(0); tick < sc.Ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return r.report, err
		}
		if err := r.step(logging.WithTick(ctx, tick), tick); err != nil {
			return r.report, err
		}
		r.report.Ticks++
	}

	r.report.MoneySupply = s.Ledger.MoneySupply()
	r.report.Fingerprint = s.Fingerprint()
	return r.report, nil
}

func (r *run) populate(ctx context.Context) error {
	f := r.stack.Facade
	for i := 0; i < r.sc.Firms; i++ {
		id, err := f.RegisterFirm(ctx, domain.AgentRegistrationRequest{InitialCash: r.sc.FirmCash})
		if err != nil {
			return fmt.Errorf("failed to register firm: %w", err)
		}
		r.firms = append(r.firms, id)
	}
	for i := 0; i < r.sc.Households; i++ {
		id, err := f.RegisterHousehold(ctx, domain.AgentRegistrationRequest{InitialCash: r.sc.HouseholdCash})
		if err != nil {
			return fmt.Errorf("failed to register household: %w", err)
		}
		if err := r.stack.Registry.SetSurvival(id, 1); err != nil {
			return err
		}
		r.households = append(r.households, id)
	}
	return nil
}

func (r *run) step(ctx context.Context, tick int64) error {
	s := r.stack
	if err := s.Facade.AdvanceTick(tick); err != nil {
		return err
	}

	if len(r.firms) > 0 {
		for i, hh := range r.households {
			if !r.active(ctx, hh) {
				continue
			}
			firm := r.firms[i%len(r.firms)]

			if i%3 != 0 {
				withheld := r.sc.Wage * r.sc.WithholdingPct / 100
				r.execute(ctx, domain.NewWagePayment(firm, hh, GovernmentID, r.sc.Wage, withheld, tick))
			}
			if r.execute(ctx, domain.NewGoodsPurchase(hh, firm, r.sc.Price, tick)) {
				r.feed(hh, r.sc.Meal)
			}
			r.bank(ctx, i, hh, tick)
		}
		r.borrow(ctx, tick)
		r.spend(ctx, tick)
	}
	r.repay(ctx, tick)

	if r.sc.OMOEvery > 0 && tick%r.sc.OMOEvery == 0 {
		r.execute(ctx, domain.NewOMOPurchase(BankID, r.sc.OMOAmount, tick))
	}
	if r.sc.OMOEvery > 0 && tick%r.sc.OMOEvery == r.sc.OMOEvery/2 {
		r.execute(ctx, domain.NewOMOSale(BankID, r.sc.OMOAmount/2, tick))
	}

	for _, ev := range s.Facade.ServiceLoans(ctx, tick) {
		switch ev.Type {
		case credit.EventInterestPaid:
			r.report.InterestPaid += ev.Amount
		case credit.EventDefault:
			r.report.Defaults++
		}
	}

	if err := r.starve(ctx, tick); err != nil {
		return err
	}
	var checkErr error
	s.Facade.Consistent(func() { checkErr = s.Monitor.Check(tick) })
	if checkErr != nil {
		return checkErr
	}

	logging.FromContext(ctx).Debug("Tick complete",
		slog.Int("settled", r.report.Settled),
		slog.Int("rejected", r.report.Rejected),
		slog.Int64("money_supply", s.Ledger.MoneySupply()))
	return nil
}

// bank parks a little cash with the bank every fourth tick and draws it
// back two ticks later.
func (r *run) bank(ctx context.Context, i int, hh domain.AgentID, tick int64) {
	if i%2 != 0 {
		return
	}
	switch tick % 4 {
	case 0:
		r.execute(ctx, domain.NewCustomerDeposit(hh, 100, tick))
	case 2:
		r.execute(ctx, domain.NewCustomerWithdrawal(hh, 100, tick))
	}
}

// borrow funds a durable purchase for one household and books a loan request
// for another that is cancelled within the tick.
func (r *run) borrow(ctx context.Context, tick int64) {
	if r.sc.LoanEvery <= 0 || tick == 0 || tick%r.sc.LoanEvery != 0 || len(r.households) == 0 {
		return
	}
	n := int(tick / r.sc.LoanEvery)
	buyer := r.households[n%len(r.households)]
	seller := r.firms[n%len(r.firms)]
	if r.active(ctx, buyer) {
		r.execute(ctx, domain.NewLoanFundedPurchase(buyer, seller, r.sc.LoanPrincipal, r.sc.LoanPrincipal/2, tick))
	}

	applicant := r.households[(n+1)%len(r.households)]
	if !r.active(ctx, applicant) {
		return
	}
	result := r.stack.Facade.Execute(ctx, domain.NewLoanRequest(applicant, r.sc.LoanPrincipal/3, tick))
	r.count(result)
	if result.Success && r.stack.Facade.VoidLoan(ctx, result.LoanID) {
		r.report.Voided++
	}
}

func (r *run) spend(ctx context.Context, tick int64) {
	if r.sc.StimulusEvery <= 0 || tick%r.sc.StimulusEvery != 0 {
		return
	}
	if !r.execute(ctx, domain.NewDeficitFinancing(GovernmentID, r.sc.Stimulus, tick)) {
		return
	}
	share := r.sc.Stimulus / int64(len(r.firms))
	for _, firm := range r.firms {
		r.execute(ctx, domain.NewTransfer(domain.TypeGoodsPurchase, GovernmentID, firm, share, tick))
	}
}

func (r *run) repay(ctx context.Context, tick int64) {
	for _, hh := range r.households {
		if !r.active(ctx, hh) {
			continue
		}
		for _, loan := range r.stack.Book.LoansFor(hh) {
			if loan.State.Terminal() || loan.OriginationTick == tick {
				continue
			}
			amount := min(r.sc.Installment, loan.Outstanding)
			r.execute(ctx, domain.NewLoanRepayment(loan.ID, hh, amount, tick))
		}
	}
}

func (r *run) starve(ctx context.Context, tick int64) error {
	for _, hh := range r.households {
		if !r.active(ctx, hh) {
			continue
		}
		r.feed(hh, -r.sc.Decay)
		if err := r.stack.Facade.ProcessStarvation(ctx, hh, tick); err != nil {
			return err
		}
		if !r.active(ctx, hh) {
			r.report.Starved = append(r.report.Starved, hh)
		}
	}
	return nil
}

func (r *run) feed(hh domain.AgentID, delta float64) {
	agent, err := r.stack.Registry.Get(context.Background(), hh)
	if err != nil {
		return
	}
	survival := min(max(agent.Survival+delta, 0), 1)
	_ = r.stack.Registry.SetSurvival(hh, survival)
}

func (r *run) active(ctx context.Context, id domain.AgentID) bool {
	agent, err := r.stack.Registry.Get(ctx, id)
	return err == nil && agent.Active
}

func (r *run) execute(ctx context.Context, tx domain.Transaction) bool {
	result := r.stack.Facade.Execute(ctx, tx)
	r.count(result)
	return result.Success
}

func (r *run) count(result domain.TransactionResult) {
	if result.Success {
		r.report.Settled++
		return
	}
	r.report.Rejected++
	r.stack.logger.Debug("Scenario transaction rejected",
		slog.String("transaction_id", result.TransactionID),
		slog.String("error_kind", result.ErrorKind))
}
