package internal_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"monetary_core/internal/api"
	"monetary_core/internal/config"
	"monetary_core/internal/domain"
	"monetary_core/internal/monitor"
	"monetary_core/internal/simulation"
)

type testEnv struct {
	stack   *simulation.Stack
	handler *api.APIHandler
	mux     *http.ServeMux
}

func setup(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		FirstAgentID:         1000,
		TicksPerYear:         100,
		DefaultLoanRate:      "0.07",
		DefaultLoanTermTicks: 50,
		FingerprintKey:       "test-secret",
	}

	stack, err := simulation.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	handler := api.NewAPIHandler(api.Dependencies{
		Facade:  stack.Facade,
		Ledger:  stack.Ledger,
		Book:    stack.Book,
		Monitor: stack.Monitor,
		Results: stack.Results,
		Rules:   stack.Rules,
		Signer:  stack.Signer,
	})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	return &testEnv{stack: stack, handler: handler, mux: mux}
}

func mustRegisterHousehold(t *testing.T, env *testEnv, cash int64) domain.AgentID {
	t.Helper()
	id, err := env.stack.Facade.RegisterHousehold(context.Background(), domain.AgentRegistrationRequest{InitialCash: cash})
	if err != nil {
		t.Fatalf("register household failed: %v", err)
	}
	return id
}

func mustBalance(t *testing.T, env *testEnv, id domain.AgentID) int64 {
	t.Helper()
	bal, err := env.stack.Ledger.GetBalance(id)
	if err != nil {
		t.Fatalf("balance of %d failed: %v", id, err)
	}
	return bal
}

func totalMoney(env *testEnv) int64 {
	return monitor.TotalMoney(env.stack.Monitor.Snapshot(env.stack.Ledger.Tick()))
}

func callSubmit(t *testing.T, env *testEnv, req api.SubmitTransactionRequest) (domain.TransactionResult, int) {
	t.Helper()
	b, _ := json.Marshal(req)
	r := httptest.NewRequest("POST", "/api/v1/transactions", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	env.mux.ServeHTTP(w, r)

	var result domain.TransactionResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return result, w.Result().StatusCode
}

func TestIntegration_TransferKeepsTotalMoney(t *testing.T) {
	env := setup(t)
	a := mustRegisterHousehold(t, env, 1000)
	b := mustRegisterHousehold(t, env, 40)

	before := totalMoney(env)
	if before != 1040 {
		t.Fatalf("expected total 1040, got %d", before)
	}

	result, code := callSubmit(t, env, api.SubmitTransactionRequest{
		Type: domain.TypeTransfer,
		Legs: []domain.Leg{domain.Debit(a, 300), domain.Credit(b, 300)},
	})
	if code != http.StatusCreated || !result.Success {
		t.Fatalf("expected transfer to settle, got %d %+v", code, result)
	}

	if got := mustBalance(t, env, a); got != 700 {
		t.Fatalf("expected A balance 700, got %d", got)
	}
	if got := totalMoney(env); got != before {
		t.Fatalf("total money changed from %d to %d", before, got)
	}
}

func TestIntegration_RegistrationExpandsSupply(t *testing.T) {
	env := setup(t)
	before := env.stack.Monitor.ExpectedMoneySupply()

	id := mustRegisterHousehold(t, env, 200)

	if got := env.stack.Monitor.ExpectedMoneySupply() - before; got != 200 {
		t.Fatalf("expected supply to grow by 200, grew by %d", got)
	}
	if got := mustBalance(t, env, id); got != 200 {
		t.Fatalf("expected balance 200, got %d", got)
	}
	if err := env.stack.Monitor.Check(0); err != nil {
		t.Fatalf("unexpected violation: %v", err)
	}
}

func TestIntegration_LoanRoundTrip(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	b := mustRegisterHousehold(t, env, 100)
	supply := env.stack.Ledger.MoneySupply()

	res := env.stack.Facade.Execute(ctx, domain.NewLoanRequest(b, 1000, 0))
	if !res.Success {
		t.Fatalf("loan request failed: %s", res.ErrorMessage)
	}
	res = env.stack.Facade.Execute(ctx, domain.NewLoanRepayment(res.LoanID, b, 1000, 0))
	if !res.Success {
		t.Fatalf("repayment failed: %s", res.ErrorMessage)
	}

	if got := mustBalance(t, env, b); got != 100 {
		t.Fatalf("expected balance 100 after round trip, got %d", got)
	}
	if got := env.stack.Ledger.MoneySupply(); got != supply {
		t.Fatalf("expected supply %d after round trip, got %d", supply, got)
	}
}

func TestIntegration_RuleEngineBlocks(t *testing.T) {
	env := setup(t)
	a := mustRegisterHousehold(t, env, 10_000)
	b := mustRegisterHousehold(t, env, 0)

	rule := &domain.Rule{
		ID:        "r-block-large",
		Name:      "Block large tx",
		Type:      domain.RuleTypeRisk,
		Condition: `{"field":"amount","operator":">","value":5000}`,
		Action:    `{"type":"block","params":{},"message":"block large tx"}`,
		IsActive:  true,
		Priority:  20,
	}
	if err := env.stack.Rules.Save(context.Background(), rule); err != nil {
		t.Fatalf("save rule failed: %v", err)
	}
	env.stack.RuleHook.InvalidateCache()

	result, code := callSubmit(t, env, api.SubmitTransactionRequest{
		Type: domain.TypeTransfer,
		Legs: []domain.Leg{domain.Debit(a, 6000), domain.Credit(b, 6000)},
	})
	if code != http.StatusUnprocessableEntity || result.ErrorKind != domain.KindRuleBlocked {
		t.Fatalf("expected rule block, got %d %+v", code, result)
	}
	if got := mustBalance(t, env, a); got != 10_000 {
		t.Fatalf("blocked transfer moved money: balance %d", got)
	}
}

func TestIntegration_ConcurrentTransfers(t *testing.T) {
	env := setup(t)
	a := mustRegisterHousehold(t, env, 1000)
	b := mustRegisterHousehold(t, env, 0)
	c := mustRegisterHousehold(t, env, 0)

	n := 30
	var wg sync.WaitGroup
	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			to := b
			if i%2 == 0 {
				to = c
			}
			env.stack.Facade.Execute(context.Background(), domain.NewTransfer(domain.TypeTransfer, a, to, 50, 0))
		}(i)
	}
	wg.Wait()

	total := mustBalance(t, env, a) + mustBalance(t, env, b) + mustBalance(t, env, c)
	if total != 1000 {
		t.Fatalf("expected total 1000 after concurrent transfers, got %d", total)
	}
	if got := mustBalance(t, env, a); got != 0 {
		t.Fatalf("expected 20 transfers to drain A, balance %d", got)
	}
	failed, _ := env.stack.Results.GetFailed(context.Background())
	if len(failed) != 10 {
		t.Fatalf("expected 10 rejected transfers, got %d", len(failed))
	}
}

func TestIntegration_ConservationOverManyTicks(t *testing.T) {
	env := setup(t)

	report, err := env.stack.Run(context.Background(), simulation.DefaultScenario(60))
	if err != nil {
		t.Fatalf("simulation failed after %d ticks: %v", report.Ticks, err)
	}

	r := httptest.NewRequest("GET", "/api/v1/conservation", nil)
	w := httptest.NewRecorder()
	env.mux.ServeHTTP(w, r)
	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("expected conservation to hold, got %d", w.Result().StatusCode)
	}
}

func TestIntegration_SameInputsSameFingerprint(t *testing.T) {
	first, err := setup(t).stack.Run(context.Background(), simulation.DefaultScenario(40))
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := setup(t).stack.Run(context.Background(), simulation.DefaultScenario(40))
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if first.Fingerprint != second.Fingerprint {
		t.Fatalf("fingerprints differ: %s vs %s", first.Fingerprint, second.Fingerprint)
	}
}

func TestIntegration_InvalidRequestValidation(t *testing.T) {
	env := setup(t)

	raw := []byte(`{"type":"transfer"}`)
	r := httptest.NewRequest("POST", "/api/v1/transactions", bytes.NewReader(raw))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.handler.SubmitTransactionHandler(w, r)
	if w.Result().StatusCode != 400 {
		t.Fatalf("expected 400 for invalid request, got %d", w.Result().StatusCode)
	}
}
