package domain

import (
	"github.com/google/uuid"
)

type TransactionType string

const (
	TypeTransfer           TransactionType = "transfer"
	TypeGoodsPurchase      TransactionType = "goods_purchase"
	TypeWagePayment        TransactionType = "wage_payment"
	TypeTaxPayment         TransactionType = "tax_payment"
	TypeLoanRequest        TransactionType = "loan_request"
	TypeLoanFundedPurchase TransactionType = "loan_funded_purchase"
	TypeLoanRepayment      TransactionType = "loan_repayment"
	TypeOMOPurchase        TransactionType = "omo_purchase"
	TypeOMOSale            TransactionType = "omo_sale"
	TypeDeficitFinancing   TransactionType = "deficit_financing"
	TypeCustomerDeposit    TransactionType = "customer_deposit"
	TypeCustomerWithdrawal TransactionType = "customer_withdrawal"
)

type LegKind string

const (
	LegDebit     LegKind = "debit"
	LegCredit    LegKind = "credit"
	LegOriginate LegKind = "originate"
	LegRepay     LegKind = "repay"
	LegIssue     LegKind = "issue"
	LegRetire    LegKind = "retire"
	LegDeposit   LegKind = "deposit"
	LegWithdraw  LegKind = "withdraw"
)

// Leg is a single balance delta or loan-book side effect. AgentID is the
// principal party of the leg and drives commit ordering.
type Leg struct {
	Kind    LegKind      `json:"kind"`
	AgentID AgentID      `json:"agent_id"`
	Amount  int64        `json:"amount"`
	LoanID  string       `json:"loan_id,omitempty"`
	Reason  SupplyReason `json:"reason,omitempty"`
}

// Outflow reports whether the leg reduces the principal agent's balance.
func (l Leg) Outflow() bool {
	switch l.Kind {
	case LegDebit, LegRepay, LegRetire:
		return true
	}
	return false
}

// Transaction is an immutable settlement request. It is consumed once by the
// engine and never mutated by it.
type Transaction struct {
	ID       string            `json:"id"`
	Type     TransactionType   `json:"type"`
	Tick     int64             `json:"tick"`
	Legs     []Leg             `json:"legs"`
	Memo     string            `json:"memo,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func NewTransaction(t TransactionType, tick int64, legs ...Leg) Transaction {
	return Transaction{
		ID:   uuid.NewString(),
		Type: t,
		Tick: tick,
		Legs: legs,
	}
}

func (tx Transaction) WithMemo(memo string) Transaction {
	tx.Memo = memo
	return tx
}

func (tx Transaction) WithMetadata(key, value string) Transaction {
	md := make(map[string]string, len(tx.Metadata)+1)
	for k, v := range tx.Metadata {
		md[k] = v
	}
	md[key] = value
	tx.Metadata = md
	return tx
}

// Agents returns the distinct principal agents of the transaction in leg order.
func (tx Transaction) Agents() []AgentID {
	seen := make(map[AgentID]struct{}, len(tx.Legs))
	var ids []AgentID
	for _, leg := range tx.Legs {
		if _, ok := seen[leg.AgentID]; ok {
			continue
		}
		seen[leg.AgentID] = struct{}{}
		ids = append(ids, leg.AgentID)
	}
	return ids
}

func Debit(agent AgentID, amount int64) Leg {
	return Leg{Kind: LegDebit, AgentID: agent, Amount: amount}
}

func Credit(agent AgentID, amount int64) Leg {
	return Leg{Kind: LegCredit, AgentID: agent, Amount: amount}
}

func NewTransfer(t TransactionType, from, to AgentID, amount, tick int64) Transaction {
	return NewTransaction(t, tick, Debit(from, amount), Credit(to, amount))
}

func NewGoodsPurchase(buyer, seller AgentID, amount, tick int64) Transaction {
	return NewTransfer(TypeGoodsPurchase, buyer, seller, amount, tick)
}

func NewTaxPayment(payer, government AgentID, amount, tick int64) Transaction {
	return NewTransfer(TypeTaxPayment, payer, government, amount, tick)
}

// NewWagePayment debits the gross wage from the firm and splits it between the
// household and the government's withholding.
func NewWagePayment(firm, household, government AgentID, gross, withheld, tick int64) Transaction {
	legs := []Leg{Debit(firm, gross), Credit(household, gross-withheld)}
	if withheld > 0 {
		legs = append(legs, Credit(government, withheld))
	}
	return NewTransaction(TypeWagePayment, tick, legs...)
}

func NewLoanRequest(borrower AgentID, principal, tick int64) Transaction {
	return NewTransaction(TypeLoanRequest, tick,
		Leg{Kind: LegOriginate, AgentID: borrower, Amount: principal})
}

// NewLoanFundedPurchase originates a loan to the buyer and spends price on the
// seller in the same atomic transaction.
func NewLoanFundedPurchase(buyer, seller AgentID, principal, price, tick int64) Transaction {
	return NewTransaction(TypeLoanFundedPurchase, tick,
		Leg{Kind: LegOriginate, AgentID: buyer, Amount: principal},
		Debit(buyer, price),
		Credit(seller, price),
	)
}

func NewLoanRepayment(loanID string, borrower AgentID, amount, tick int64) Transaction {
	return NewTransaction(TypeLoanRepayment, tick,
		Leg{Kind: LegRepay, AgentID: borrower, Amount: amount, LoanID: loanID})
}

// NewOMOPurchase is the central bank buying an asset from counterparty with new money.
func NewOMOPurchase(counterparty AgentID, amount, tick int64) Transaction {
	return NewTransaction(TypeOMOPurchase, tick,
		Leg{Kind: LegIssue, AgentID: counterparty, Amount: amount, Reason: ReasonOMOPurchase})
}

// NewOMOSale is the central bank selling an asset to counterparty and retiring the proceeds.
func NewOMOSale(counterparty AgentID, amount, tick int64) Transaction {
	return NewTransaction(TypeOMOSale, tick,
		Leg{Kind: LegRetire, AgentID: counterparty, Amount: amount, Reason: ReasonOMOSale})
}

func NewDeficitFinancing(government AgentID, amount, tick int64) Transaction {
	return NewTransaction(TypeDeficitFinancing, tick,
		Leg{Kind: LegIssue, AgentID: government, Amount: amount, Reason: ReasonDeficitSpending})
}

func NewCustomerDeposit(depositor AgentID, amount, tick int64) Transaction {
	return NewTransaction(TypeCustomerDeposit, tick,
		Leg{Kind: LegDeposit, AgentID: depositor, Amount: amount})
}

func NewCustomerWithdrawal(depositor AgentID, amount, tick int64) Transaction {
	return NewTransaction(TypeCustomerWithdrawal, tick,
		Leg{Kind: LegWithdraw, AgentID: depositor, Amount: amount})
}

// TransactionResult is the only settlement outcome exposed to callers.
//
// AmountProcessed is the gross value settled: the sum over legs of what each
// leg booked, with repayments counted as actually paid and credit legs
// counted as zero since they receive a debit already counted. A loan funded
// purchase of 1000 for 1000 therefore processes 2000.
type TransactionResult struct {
	Success         bool   `json:"success"`
	TransactionID   string `json:"transaction_id"`
	ErrorMessage    string `json:"error_message,omitempty"`
	ErrorKind       string `json:"error_kind,omitempty"`
	AmountProcessed int64  `json:"amount_processed"`
	LoanID          string `json:"loan_id,omitempty"`
}

func Failed(txID string, err error) TransactionResult {
	return TransactionResult{
		TransactionID: txID,
		ErrorMessage:  err.Error(),
		ErrorKind:     ErrorKind(err),
	}
}

// SettlementRecord is the audit entry kept for every settled or rejected transaction.
type SettlementRecord struct {
	Result TransactionResult `json:"result"`
	Type   TransactionType   `json:"type"`
	Tick   int64             `json:"tick"`
	Agents []AgentID         `json:"agents"`
}
