// Package monitor is a read-only view over the ledger used to verify that the
// money in accounts matches the money-supply counter.
package monitor

import (
	"fmt"
	"log/slog"

	"monetary_core/internal/credit"
	"monetary_core/internal/domain"
	"monetary_core/internal/ledger"
)

type Snapshot struct {
	Tick         int64                      `json:"tick"`
	KindTotals   map[domain.AgentKind]int64 `json:"kind_totals"`
	BankPosition domain.BankPosition        `json:"bank_position"`
	Reflux       int64                      `json:"reflux"`
	Issuer       int64                      `json:"issuer"`
	TotalMoney   int64                      `json:"total_money"`
	Expected     int64                      `json:"expected"`
	Drift        int64                      `json:"drift"`
}

// ConservationViolation reports a drift beyond tolerance. It is a defect
// signal for the caller and is never corrected.
type ConservationViolation struct {
	Tick      int64
	Total     int64
	Expected  int64
	Tolerance int64
}

func (v *ConservationViolation) Error() string {
	return fmt.Sprintf("conservation violated at tick %d: total money %d, expected %d (drift %d, tolerance %d)",
		v.Tick, v.Total, v.Expected, v.Total-v.Expected, v.Tolerance)
}

// Exporter receives every snapshot taken. *metrics.MetricsCollector satisfies it.
type Exporter interface {
	UpdateConservation(expected, total, drift int64)
	UpdateKindBalance(kind string, balance int64)
	UpdateLoanBook(outstanding int64, live int)
}

type Monitor struct {
	ledger    *ledger.Ledger
	book      *credit.Book
	tolerance int64
	exporter  Exporter
	logger    *slog.Logger
}

func New(l *ledger.Ledger, book *credit.Book, tolerance int64, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if tolerance < 0 {
		tolerance = -tolerance
	}

	return &Monitor{ledger: l, book: book, tolerance: tolerance, logger: logger}
}

func (m *Monitor) SetExporter(e Exporter) {
	m.exporter = e
}

func (m *Monitor) Snapshot(tick int64) Snapshot {
	s := Snapshot{
		Tick:       tick,
		KindTotals: make(map[domain.AgentKind]int64),
		Expected:   m.ledger.MoneySupply(),
	}

	for _, acc := range m.ledger.Accounts() {
		s.KindTotals[acc.Kind] += acc.Balance
		switch acc.Kind {
		case domain.KindSystem:
			s.Reflux += acc.Balance
		case domain.KindCentralBank:
			s.Issuer += acc.Balance
		}
	}

	if m.book != nil {
		if pos, err := m.book.Position(); err == nil {
			s.BankPosition = pos
		}
	}

	s.TotalMoney = TotalMoney(s)
	s.Drift = s.TotalMoney - s.Expected

	if m.exporter != nil {
		m.export(s)
	}
	return s
}

// TotalMoney sums every money-holding balance in s. The bank contributes its
// reserves; the central bank issues money and holds none.
func TotalMoney(s Snapshot) int64 {
	var total int64
	for kind, balance := range s.KindTotals {
		if kind.IsIssuer() {
			continue
		}
		total += balance
	}
	return total
}

func (m *Monitor) ExpectedMoneySupply() int64 {
	return m.ledger.MoneySupply()
}

// Check fails with *ConservationViolation when drift exceeds the tolerance.
func (m *Monitor) Check(tick int64) error {
	s := m.Snapshot(tick)

	drift := s.Drift
	if drift < 0 {
		drift = -drift
	}
	if drift <= m.tolerance {
		return nil
	}

	m.logger.Error("Conservation violated",
		slog.Int64("tick", tick),
		slog.Int64("total_money", s.TotalMoney),
		slog.Int64("expected", s.Expected),
		slog.Int64("drift", s.Drift))

	return &ConservationViolation{
		Tick:      tick,
		Total:     s.TotalMoney,
		Expected:  s.Expected,
		Tolerance: m.tolerance,
	}
}

func (m *Monitor) export(s Snapshot) {
	m.exporter.UpdateConservation(s.Expected, s.TotalMoney, s.Drift)
	for kind, balance := range s.KindTotals {
		m.exporter.UpdateKindBalance(string(kind), balance)
	}

	var live int
	if m.book != nil {
		live = len(m.book.Loans())
	}
	m.exporter.UpdateLoanBook(s.BankPosition.LoanAssets, live)
}
