package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tealbook/ledgerd/internal/ledger"
	"github.com/tealbook/ledgerd/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type txResp struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	IsBalanced  bool   `json:"is_balanced"`
	Entries     []struct {
		ID        string `json:"id"`
		AccountID string `json:"account_id"`
		Side      string `json:"side"`
		Amount    string `json:"amount"`
		Unit      string `json:"unit"`
		Generated bool   `json:"generated"`
	} `json:"entries"`
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func setup(t *testing.T) (*memory.Store, http.Handler, ledger.Account, ledger.Account) {
	t.Helper()
	store := memory.New()
	cash := ledger.Account{ID: uuid.New(), Name: "Cash", Type: ledger.AccountTypeAsset, Unit: "USD", Active: true}
	income := ledger.Account{ID: uuid.New(), Name: "Income", Type: ledger.AccountTypeIncome, Unit: "USD", Active: true}
	store.SeedAccount(cash)
	store.SeedAccount(income)
	h := New(store, testLogger()).Handler()
	return store, h, cash, income
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return out
}

func TestPostTransaction(t *testing.T) {
	_, h, cash, income := setup(t)

	body := map[string]any{
		"date":        "2024-03-05",
		"description": "Lunch",
		"entries": []map[string]any{
			{"account_id": cash.ID.String(), "side": "credit", "amount": "15.00"},
			{"account_id": income.ID.String(), "side": "debit", "amount": "15.00"},
		},
	}
	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[txResp](t, rr)
	if !got.IsBalanced {
		t.Fatalf("expected balanced transaction")
	}
	if len(got.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Entries))
	}
	if got.Entries[0].Unit != "USD" {
		t.Fatalf("expected denormalized unit USD, got %q", got.Entries[0].Unit)
	}
}

func TestPostTransactionOpposingEntries(t *testing.T) {
	_, h, cash, _ := setup(t)

	body := map[string]any{
		"date":        "2024-03-05",
		"description": "self-cancel",
		"entries": []map[string]any{
			{"account_id": cash.ID.String(), "side": "debit", "amount": "10"},
			{"account_id": cash.ID.String(), "side": "credit", "amount": "10"},
		},
	}
	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	if e := decode[errResp](t, rr); e.Code != "opposing_entries" {
		t.Fatalf("expected code opposing_entries, got %q", e.Code)
	}
}

func TestPostTransactionUnknownAccount(t *testing.T) {
	_, h, _, _ := setup(t)

	body := map[string]any{
		"date":        "2024-03-05",
		"description": "ghost",
		"entries": []map[string]any{
			{"account_id": uuid.New().String(), "side": "debit", "amount": "10"},
		},
	}
	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", body)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	if e := decode[errResp](t, rr); e.Code != "unknown_account" {
		t.Fatalf("expected code unknown_account, got %q", e.Code)
	}
}

func TestRenameRuleAppliesOnCreate(t *testing.T) {
	_, h, cash, _ := setup(t)

	rule := map[string]any{
		"name":        "tidy test",
		"pattern":     "^Test",
		"side_filter": "both",
		"auto_apply":  true,
		"action":      map[string]any{"kind": "rename", "replacement": "Tested Transaction"},
	}
	rr := doJSON(t, h, http.MethodPost, "/v1/rules", rule)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	body := map[string]any{
		"date":        "2024-03-05",
		"description": "Test Transaction",
		"entries": []map[string]any{
			{"account_id": cash.ID.String(), "side": "debit", "amount": "10"},
		},
	}
	rr = doJSON(t, h, http.MethodPost, "/v1/transactions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decode[txResp](t, rr); got.Description != "Tested Transaction" {
		t.Fatalf("expected renamed description, got %q", got.Description)
	}
}

func TestComplementRuleGeneratesEntries(t *testing.T) {
	_, h, cash, income := setup(t)

	rule := map[string]any{
		"name":        "close salary gap",
		"pattern":     "salary",
		"side_filter": "both",
		"auto_apply":  true,
		"action": map[string]any{
			"kind": "complement",
			"destinations": []map[string]any{
				{"account_id": income.ID.String(), "ratio": "1"},
			},
		},
	}
	if rr := doJSON(t, h, http.MethodPost, "/v1/rules", rule); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	body := map[string]any{
		"date":        "2024-03-05",
		"description": "salary march",
		"entries": []map[string]any{
			{"account_id": cash.ID.String(), "side": "debit", "amount": "2500"},
		},
	}
	rr := doJSON(t, h, http.MethodPost, "/v1/transactions", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[txResp](t, rr)
	if !got.IsBalanced {
		t.Fatalf("expected the complement to balance the transaction")
	}
	if len(got.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got.Entries))
	}
	if !got.Entries[1].Generated {
		t.Fatalf("expected the added entry to be marked generated")
	}
}

func TestMergeEndpoint(t *testing.T) {
	store, h, cash, income := setup(t)

	src := ledger.Transaction{ID: uuid.New(), Date: mustDate("2024-03-05"), Description: "payout",
		Entries: []ledger.Entry{{ID: uuid.New(), AccountID: cash.ID, Side: ledger.SideDebit,
			Amount: mustDecimal("300"), Unit: "USD"}}}
	tgt := ledger.Transaction{ID: uuid.New(), Date: mustDate("2024-03-06"), Description: "counterpart",
		Entries: []ledger.Entry{{ID: uuid.New(), AccountID: income.ID, Side: ledger.SideCredit,
			Amount: mustDecimal("300"), Unit: "USD"}}}
	store.SeedTransaction(src)
	store.SeedTransaction(tgt)

	rr := doJSON(t, h, http.MethodPost, "/v1/reconcile/merge", map[string]any{
		"source_id": src.ID.String(), "target_id": tgt.ID.String(),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	got := decode[txResp](t, rr)
	if !got.IsBalanced || len(got.Entries) != 2 {
		t.Fatalf("expected balanced 2-entry merge result, got %+v", got)
	}

	// Target is gone.
	rr = doJSON(t, h, http.MethodGet, "/v1/transactions/"+tgt.ID.String(), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for merged-away target, got %d", rr.Code)
	}
}

func TestDeleteLastEntryCascades(t *testing.T) {
	store, h, cash, _ := setup(t)

	entryID := uuid.New()
	tx := ledger.Transaction{ID: uuid.New(), Date: mustDate("2024-03-05"), Description: "single",
		Entries: []ledger.Entry{{ID: entryID, AccountID: cash.ID, Side: ledger.SideDebit,
			Amount: mustDecimal("10"), Unit: "USD"}}}
	store.SeedTransaction(tx)

	rr := doJSON(t, h, http.MethodDelete,
		"/v1/transactions/"+tx.ID.String()+"/entries/"+entryID.String(), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		TransactionRemoved bool `json:"transaction_removed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil || !out.TransactionRemoved {
		t.Fatalf("expected transaction_removed=true, got %s", rr.Body.String())
	}
}

func TestComplementarySearch(t *testing.T) {
	store, h, _, income := setup(t)

	match := ledger.Transaction{ID: uuid.New(), Date: mustDate("2024-03-06"), Description: "open credit",
		Entries: []ledger.Entry{{ID: uuid.New(), AccountID: income.ID, Side: ledger.SideCredit,
			Amount: mustDecimal("250"), Unit: "USD"}}}
	store.SeedTransaction(match)

	rr := doJSON(t, h, http.MethodGet,
		"/v1/search/complementary?date=2024-03-05&amount=250&side=debit", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Items      []txResp          `json:"items"`
		Pagination ledger.Pagination `json:"pagination"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Items) != 1 || out.Items[0].ID != match.ID.String() {
		t.Fatalf("expected the open credit to match, got %s", rr.Body.String())
	}
	if out.Pagination.Total != 1 {
		t.Fatalf("expected total 1, got %d", out.Pagination.Total)
	}
}

func TestBulkApplyEndpoint(t *testing.T) {
	store, h, cash, income := setup(t)

	rule := map[string]any{
		"name":        "close gaps",
		"pattern":     "uncat",
		"side_filter": "both",
		"auto_apply":  true,
		"action": map[string]any{
			"kind": "complement",
			"destinations": []map[string]any{
				{"account_id": income.ID.String(), "ratio": "1"},
			},
		},
	}
	if rr := doJSON(t, h, http.MethodPost, "/v1/rules", rule); rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	open := ledger.Transaction{ID: uuid.New(), Date: mustDate("2024-03-05"), Description: "uncat spend",
		Entries: []ledger.Entry{{ID: uuid.New(), AccountID: cash.ID, Side: ledger.SideDebit,
			Amount: mustDecimal("20"), Unit: "USD"}}}
	store.SeedTransaction(open)

	rr := doJSON(t, h, http.MethodPost, "/v1/rules/apply", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var report struct {
		Processed int `json:"processed"`
		Modified  int `json:"modified"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Processed != 1 || report.Modified != 1 {
		t.Fatalf("expected processed=1 modified=1, got %s", rr.Body.String())
	}
}

func TestAccountCRUD(t *testing.T) {
	_, h, _, _ := setup(t)

	rr := doJSON(t, h, http.MethodPost, "/v1/accounts", map[string]any{
		"name": "Groceries", "type": "expense",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var acct struct {
		ID   string `json:"id"`
		Unit string `json:"unit"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &acct); err != nil {
		t.Fatalf("decode account: %v", err)
	}
	if acct.Unit != "USD" {
		t.Fatalf("expected default unit USD, got %q", acct.Unit)
	}

	rr = doJSON(t, h, http.MethodGet, "/v1/accounts/"+acct.ID, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = doJSON(t, h, http.MethodDelete, "/v1/accounts/"+acct.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	_, h, _, _ := setup(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := doJSON(t, h, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d.UTC()
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
