package domain

type Account struct {
	AgentID    AgentID   `json:"agent_id"`
	Kind       AgentKind `json:"kind"`
	Balance    int64     `json:"balance"`
	Active     bool      `json:"active"`
	OpenedTick int64     `json:"opened_tick"`
}

// Deposit is a bank liability held on behalf of a depositor.
type Deposit struct {
	ID          string  `json:"id"`
	DepositorID AgentID `json:"depositor_id"`
	Amount      int64   `json:"amount"`
	CreatedTick int64   `json:"created_tick"`
}

// BankPosition is the consolidated balance sheet of a bank.
type BankPosition struct {
	BankID             AgentID `json:"bank_id"`
	Reserves           int64   `json:"reserves"`
	LoanAssets         int64   `json:"loan_assets"`
	DepositLiabilities int64   `json:"deposit_liabilities"`
}

func (p BankPosition) NetAssets() int64 {
	return p.Reserves + p.LoanAssets - p.DepositLiabilities
}

// SupplyReason tags every movement of the money-supply counter.
type SupplyReason string

const (
	ReasonHouseholdRegistration SupplyReason = "HOUSEHOLD_REGISTRATION"
	ReasonFirmRegistration      SupplyReason = "FIRM_REGISTRATION"
	ReasonGenesis               SupplyReason = "GENESIS"
	ReasonLoanOrigination       SupplyReason = "LOAN_ORIGINATION"
	ReasonLoanRepayment         SupplyReason = "LOAN_REPAYMENT"
	ReasonLoanWriteOff          SupplyReason = "LOAN_WRITE_OFF"
	ReasonLoanVoid              SupplyReason = "LOAN_VOID"
	ReasonOMOPurchase           SupplyReason = "OMO_PURCHASE"
	ReasonOMOSale               SupplyReason = "OMO_SALE"
	ReasonDeficitSpending       SupplyReason = "DEFICIT_SPENDING"
)

type SupplyChange struct {
	Tick   int64        `json:"tick"`
	Delta  int64        `json:"delta"`
	Reason SupplyReason `json:"reason"`
}
