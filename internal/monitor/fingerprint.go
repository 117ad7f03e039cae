package monitor

import (
	"monetary_core/pkg/crypto"
)

// Fingerprint digests balances, the supply counter and its history, the live
// loan book and every deposit. Two runs fed the same inputs produce the same
// fingerprint.
func (m *Monitor) Fingerprint(signer *crypto.Signer) string {
	return m.digest(signer).Sum()
}

// VerifyFingerprint reports crypto.ErrFingerprintMismatch unless expected is
// the fingerprint of the current state.
func (m *Monitor) VerifyFingerprint(signer *crypto.Signer, expected string) error {
	return m.digest(signer).Verify(expected)
}

func (m *Monitor) digest(signer *crypto.Signer) *crypto.Digest {
	d := signer.Digest()

	accounts := m.ledger.Accounts()
	for _, acc := range accounts {
		d.Record("account", acc.AgentID, acc.Kind, acc.Balance, acc.Active)
	}

	d.Record("supply", m.ledger.MoneySupply())
	for _, c := range m.ledger.SupplyHistory() {
		d.Record("supply_change", c.Tick, c.Delta, c.Reason)
	}

	if m.book != nil {
		for _, loan := range m.book.Loans() {
			d.Record("loan", loan.ID, loan.BorrowerID, loan.Principal, loan.Outstanding,
				loan.Repaid, loan.State, loan.DueTick)
		}
		for _, acc := range accounts {
			for _, dep := range m.book.DepositsFor(acc.AgentID) {
				d.Record("deposit", dep.ID, dep.DepositorID, dep.Amount)
			}
		}
	}

	return d
}
