package credit

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monetary_core/internal/domain"
	"monetary_core/internal/ledger"
)

const (
	bankID      domain.AgentID = 1
	cbID        domain.AgentID = 2
	borrowerID  domain.AgentID = 10
	merchantID  domain.AgentID = 11
	initialCash int64          = 100
)

type fixture struct {
	ledger *ledger.Ledger
	book   *Book
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	l := ledger.New(nil)
	require.NoError(t, l.Open(domain.Account{AgentID: bankID, Kind: domain.KindBank}))
	require.NoError(t, l.Open(domain.Account{AgentID: cbID, Kind: domain.KindCentralBank}))
	require.NoError(t, l.Open(domain.Account{AgentID: borrowerID, Kind: domain.KindHousehold, Balance: initialCash}))
	require.NoError(t, l.Open(domain.Account{AgentID: merchantID, Kind: domain.KindFirm}))
	require.NoError(t, l.RecordMonetaryExpansion(initialCash, domain.ReasonHouseholdRegistration))

	cfg := DefaultConfig(bankID)
	cfg.CentralBankID = cbID
	return fixture{ledger: l, book: New(l, cfg, nil)}
}

func (f fixture) balance(t *testing.T, id domain.AgentID) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(id)
	require.NoError(t, err)
	return b
}

func TestBook_Originate(t *testing.T) {
	f := newFixture(t)

	loanID, err := f.book.Originate(borrowerID, 1000)
	require.NoError(t, err)
	assert.Equal(t, "loan_1", loanID)

	loan, err := f.book.Loan(loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanActive, loan.State)
	assert.Equal(t, int64(1000), loan.Outstanding)
	assert.Equal(t, int64(50), loan.DueTick)
	assert.Equal(t, "dep_1", loan.CreatedDepositID)

	assert.Equal(t, initialCash+1000, f.balance(t, borrowerID))
	assert.Equal(t, initialCash+1000, f.ledger.MoneySupply())
	assert.Equal(t, int64(1000), f.book.DepositTotal(borrowerID))

	pos, err := f.book.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(1000), pos.LoanAssets)
	assert.Equal(t, int64(1000), pos.DepositLiabilities)
	assert.Equal(t, int64(0), pos.NetAssets())
}

func TestBook_Originate_UnknownBorrowerLeavesNoTrace(t *testing.T) {
	f := newFixture(t)

	_, err := f.book.Originate(999, 1000)
	assert.ErrorIs(t, err, domain.ErrUnknownAgent)
	assert.Empty(t, f.book.Loans())
	assert.Equal(t, initialCash, f.ledger.MoneySupply())

	loanID, err := f.book.Originate(borrowerID, 10)
	require.NoError(t, err)
	assert.Equal(t, "loan_1", loanID)
}

func TestBook_Originate_InvalidPrincipal(t *testing.T) {
	f := newFixture(t)

	_, err := f.book.Originate(borrowerID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestBook_LoanRoundTrip(t *testing.T) {
	f := newFixture(t)
	balanceBefore := f.balance(t, borrowerID)
	supplyBefore := f.ledger.MoneySupply()

	loanID, err := f.book.Originate(borrowerID, 1000)
	require.NoError(t, err)

	paid, err := f.book.Repay(loanID, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), paid)

	assert.Equal(t, balanceBefore, f.balance(t, borrowerID))
	assert.Equal(t, supplyBefore, f.ledger.MoneySupply())
	assert.Empty(t, f.book.DepositsFor(borrowerID))

	loan, err := f.book.Loan(loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanClosed, loan.State)
	assert.False(t, f.book.Contains(loanID))
}

func TestBook_Repay_PartialThenCapped(t *testing.T) {
	f := newFixture(t)
	loanID, err := f.book.Originate(borrowerID, 500)
	require.NoError(t, err)

	paid, err := f.book.Repay(loanID, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(200), paid)

	loan, err := f.book.Loan(loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanRepaying, loan.State)
	assert.Equal(t, int64(300), loan.Outstanding)

	paid, err = f.book.Repay(loanID, 10_000)
	require.NoError(t, err)
	assert.Equal(t, int64(300), paid)
	assert.Equal(t, initialCash, f.ledger.MoneySupply())
}

func TestBook_Repay_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.book.Repay("loan_404", 10)
	assert.ErrorIs(t, err, domain.ErrLoanNotFound)

	loanID, err := f.book.Originate(borrowerID, 500)
	require.NoError(t, err)

	// spend everything so the repayment cannot be covered
	require.NoError(t, f.ledger.Debit(borrowerID, initialCash+500))
	_, err = f.book.Repay(loanID, 100)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	loan, err := f.book.Loan(loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanActive, loan.State)
	assert.Equal(t, int64(500), loan.Outstanding)
}

func TestBook_Repay_VoidedLoan(t *testing.T) {
	f := newFixture(t)
	loanID, err := f.book.Originate(borrowerID, 500)
	require.NoError(t, err)
	require.True(t, f.book.Void(loanID))

	_, err = f.book.Repay(loanID, 100)
	assert.ErrorIs(t, err, domain.ErrIllegalStateTransition)
}

func TestBook_Void(t *testing.T) {
	f := newFixture(t)
	balanceBefore := f.balance(t, borrowerID)
	supplyBefore := f.ledger.MoneySupply()

	loanID, err := f.book.Originate(borrowerID, 500)
	require.NoError(t, err)

	assert.True(t, f.book.Void(loanID))
	assert.Equal(t, balanceBefore, f.balance(t, borrowerID))
	assert.Equal(t, supplyBefore, f.ledger.MoneySupply())
	assert.False(t, f.book.Contains(loanID))
	assert.Empty(t, f.book.DepositsFor(borrowerID))

	assert.False(t, f.book.Void(loanID), "second void must fail")
}

func TestBook_Void_PicksLinkedDeposit(t *testing.T) {
	f := newFixture(t)

	first, err := f.book.Originate(borrowerID, 500)
	require.NoError(t, err)
	_, err = f.book.Originate(borrowerID, 500)
	require.NoError(t, err)

	require.True(t, f.book.Void(first))

	deps := f.book.DepositsFor(borrowerID)
	require.Len(t, deps, 1)
	assert.Equal(t, "dep_2", deps[0].ID)
}

func TestBook_Void_RejectsWithoutSideEffects(t *testing.T) {
	t.Run("unknown", func(t *testing.T) {
		f := newFixture(t)
		assert.False(t, f.book.Void("loan_9"))
	})

	t.Run("after repayment", func(t *testing.T) {
		f := newFixture(t)
		loanID, err := f.book.Originate(borrowerID, 500)
		require.NoError(t, err)
		_, err = f.book.Repay(loanID, 50)
		require.NoError(t, err)

		supply := f.ledger.MoneySupply()
		assert.False(t, f.book.Void(loanID))
		assert.True(t, f.book.Contains(loanID))
		assert.Equal(t, supply, f.ledger.MoneySupply())
	})

	t.Run("funds spent", func(t *testing.T) {
		f := newFixture(t)
		loanID, err := f.book.Originate(borrowerID, 500)
		require.NoError(t, err)
		require.NoError(t, f.ledger.Debit(borrowerID, 550))
		require.NoError(t, f.ledger.Credit(merchantID, 550))

		supply := f.ledger.MoneySupply()
		assert.False(t, f.book.Void(loanID))
		assert.True(t, f.book.Contains(loanID))
		assert.Equal(t, supply, f.ledger.MoneySupply())
		assert.Equal(t, int64(50), f.balance(t, borrowerID))
	})
}

func TestBook_Void_FuzzyMatch(t *testing.T) {
	f := newFixture(t)
	f.book.cfg.DepositMatchTolerance = 5

	loanID, err := f.book.Originate(borrowerID, 500)
	require.NoError(t, err)
	// the linked deposit is gone; an external one of similar size remains
	require.NoError(t, f.book.WithdrawForCustomer(borrowerID, 500))
	_, err = f.book.DepositFromCustomer(borrowerID, 497)
	require.NoError(t, err)

	require.True(t, f.book.Void(loanID))
	assert.Empty(t, f.book.DepositsFor(borrowerID))
}

func TestBook_WriteOff(t *testing.T) {
	f := newFixture(t)
	loanID, err := f.book.Originate(borrowerID, 800)
	require.NoError(t, err)

	lost, err := f.book.WriteOff(loanID)
	require.NoError(t, err)
	assert.Equal(t, int64(800), lost)

	assert.Equal(t, int64(-800), f.balance(t, bankID))
	assert.Equal(t, initialCash+800, f.balance(t, borrowerID))
	assert.Equal(t, initialCash, f.ledger.MoneySupply())

	loan, err := f.book.Loan(loanID)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanDefaulted, loan.State)

	_, err = f.book.WriteOff(loanID)
	assert.ErrorIs(t, err, domain.ErrIllegalStateTransition)
}

func TestBook_ServiceLoans(t *testing.T) {
	f := newFixture(t)

	// 10_000 * 0.07 / 100 = 7 per tick
	paying, err := f.book.Originate(borrowerID, 10_000)
	require.NoError(t, err)

	require.NoError(t, f.ledger.Open(domain.Account{AgentID: 12, Kind: domain.KindHousehold}))
	broke, err := f.book.Originate(12, 10_000)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Debit(12, 10_000))
	require.NoError(t, f.ledger.Credit(merchantID, 10_000))

	supply := f.ledger.MoneySupply()
	events := f.book.ServiceLoans(4)
	require.Len(t, events, 2)

	assert.Equal(t, ServicingEvent{Type: EventInterestPaid, LoanID: paying, BorrowerID: borrowerID, Amount: 7, Tick: 4}, events[0])
	assert.Equal(t, ServicingEvent{Type: EventDefault, LoanID: broke, BorrowerID: 12, Amount: 10_000, Tick: 4}, events[1])

	assert.Equal(t, int64(7-10_000), f.balance(t, bankID))
	assert.Equal(t, supply-10_000, f.ledger.MoneySupply())
	assert.False(t, f.book.Contains(broke))
}

func TestBook_ServiceLoans_DeactivatedBorrowerDefaults(t *testing.T) {
	f := newFixture(t)
	id, err := f.book.Originate(borrowerID, 10_000)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Deactivate(borrowerID))

	events := f.book.ServiceLoans(1)
	require.Len(t, events, 1)
	assert.Equal(t, EventDefault, events[0].Type)

	loan, err := f.book.Loan(id)
	require.NoError(t, err)
	assert.Equal(t, domain.LoanDefaulted, loan.State)
}

func TestBook_Interest_RoundsHalfUp(t *testing.T) {
	f := newFixture(t)
	loan := domain.Loan{Outstanding: 50, AnnualRate: decimal.RequireFromString("0.01")}

	assert.Equal(t, int64(0), f.book.interest(loan))

	loan.Outstanding = 5000
	loan.AnnualRate = decimal.RequireFromString("0.001")
	// 5000 * 0.001 / 100 = 0.05
	assert.Equal(t, int64(0), f.book.interest(loan))

	loan.AnnualRate = decimal.RequireFromString("0.01")
	// 0.5 rounds up
	assert.Equal(t, int64(1), f.book.interest(loan))
}

func TestBook_Deposits(t *testing.T) {
	f := newFixture(t)

	first, err := f.book.DepositFromCustomer(borrowerID, 60)
	require.NoError(t, err)
	_, err = f.book.DepositFromCustomer(borrowerID, 30)
	require.NoError(t, err)

	_, err = f.book.DepositFromCustomer(borrowerID, 11)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, f.book.WithdrawForCustomer(borrowerID, 40))
	deps := f.book.DepositsFor(borrowerID)
	require.Len(t, deps, 1)
	assert.Equal(t, first, deps[0].ID)
	assert.Equal(t, int64(50), deps[0].Amount)

	assert.ErrorIs(t, f.book.WithdrawForCustomer(borrowerID, 51), domain.ErrInsufficientFunds)
	assert.Equal(t, initialCash, f.balance(t, borrowerID))
}

func TestBook_Spend_ReleasesUncoveredDeposits(t *testing.T) {
	f := newFixture(t)
	_, err := f.book.Originate(borrowerID, 1000)
	require.NoError(t, err)

	// 1100 balance, 1000 deposits: the first 100 spent leave deposits whole
	require.NoError(t, f.book.Spend(borrowerID, 100))
	assert.Equal(t, int64(1000), f.book.DepositTotal(borrowerID))

	require.NoError(t, f.book.Spend(borrowerID, 750))
	assert.Equal(t, int64(250), f.balance(t, borrowerID))
	assert.Equal(t, int64(250), f.book.DepositTotal(borrowerID))

	pos, err := f.book.Position()
	require.NoError(t, err)
	assert.Equal(t, int64(250), pos.DepositLiabilities)

	assert.ErrorIs(t, f.book.Spend(borrowerID, 251), domain.ErrInsufficientFunds)
	assert.Equal(t, int64(250), f.book.DepositTotal(borrowerID))
}

func TestBook_Spend_RolledBackWithJournal(t *testing.T) {
	f := newFixture(t)
	_, err := f.book.Originate(borrowerID, 500)
	require.NoError(t, err)

	j := f.ledger.Begin()
	require.NoError(t, f.book.Spend(borrowerID, 600))
	assert.Equal(t, int64(0), f.book.DepositTotal(borrowerID))
	j.Rollback()

	assert.Equal(t, int64(600), f.balance(t, borrowerID))
	assert.Equal(t, int64(500), f.book.DepositTotal(borrowerID))
}

func TestBook_Withdraw_NeedsBalance(t *testing.T) {
	f := newFixture(t)
	_, err := f.book.DepositFromCustomer(borrowerID, 80)
	require.NoError(t, err)
	// money leaves outside the book, so deposits briefly exceed the balance
	require.NoError(t, f.ledger.Debit(borrowerID, 60))
	require.NoError(t, f.ledger.Credit(merchantID, 60))

	err = f.book.WithdrawForCustomer(borrowerID, 50)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(80), f.book.DepositTotal(borrowerID))
}

func TestBook_RetireAndInterestReleaseDeposits(t *testing.T) {
	f := newFixture(t)
	_, err := f.book.Originate(borrowerID, 10_000)
	require.NoError(t, err)
	require.NoError(t, f.book.Spend(borrowerID, 10_000))
	assert.Equal(t, int64(100), f.book.DepositTotal(borrowerID))

	require.NoError(t, f.book.Retire(borrowerID, 40, domain.ReasonOMOSale))
	assert.Equal(t, int64(60), f.book.DepositTotal(borrowerID))

	// 10_000 * 0.07 / 100 = 7
	events := f.book.ServiceLoans(1)
	require.Len(t, events, 1)
	assert.Equal(t, EventInterestPaid, events[0].Type)
	assert.Equal(t, int64(53), f.balance(t, borrowerID))
	assert.Equal(t, int64(53), f.book.DepositTotal(borrowerID))
}

func TestBook_IssueRetire(t *testing.T) {
	f := newFixture(t)
	gov := domain.AgentID(20)
	require.NoError(t, f.ledger.Open(domain.Account{AgentID: gov, Kind: domain.KindGovernment}))

	require.NoError(t, f.book.Issue(gov, 5000, domain.ReasonDeficitSpending))
	assert.Equal(t, int64(5000), f.balance(t, gov))
	assert.Equal(t, int64(-5000), f.balance(t, cbID))
	assert.Equal(t, initialCash+5000, f.ledger.MoneySupply())

	require.NoError(t, f.book.Retire(gov, 2000, domain.ReasonOMOSale))
	assert.Equal(t, int64(3000), f.balance(t, gov))
	assert.Equal(t, int64(-3000), f.balance(t, cbID))
	assert.Equal(t, initialCash+3000, f.ledger.MoneySupply())

	err := f.book.Retire(gov, 9000, domain.ReasonOMOSale)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, initialCash+3000, f.ledger.MoneySupply())
}

func TestBook_RollbackRestoresLoanState(t *testing.T) {
	f := newFixture(t)
	existing, err := f.book.Originate(borrowerID, 100)
	require.NoError(t, err)

	j := f.ledger.Begin()
	_, err = f.book.Originate(borrowerID, 700)
	require.NoError(t, err)
	_, err = f.book.Repay(existing, 100)
	require.NoError(t, err)
	j.Rollback()

	loans := f.book.Loans()
	require.Len(t, loans, 1)
	assert.Equal(t, existing, loans[0].ID)
	assert.Equal(t, domain.LoanActive, loans[0].State)
	assert.Equal(t, int64(100), loans[0].Outstanding)
	assert.Equal(t, []domain.Deposit{{ID: "dep_1", DepositorID: borrowerID, Amount: 100}}, f.book.DepositsFor(borrowerID))

	next, err := f.book.Originate(borrowerID, 1)
	require.NoError(t, err)
	assert.Equal(t, "loan_2", next)
}
