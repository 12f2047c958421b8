package game

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/nftdash/internal/chain"
	"github.com/mtlprog/nftdash/internal/domain"
	"github.com/mtlprog/nftdash/internal/timestamp"
)

const burnAddr = "GBURN"

var testNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

type mockChain struct {
	transfers []chain.Transfer
	trades    []chain.Trade
	err       error
}

func (m *mockChain) FetchTransfers(context.Context, string) ([]chain.Transfer, error) {
	return m.transfers, m.err
}

func (m *mockChain) FetchTrades(context.Context, string) ([]chain.Trade, error) {
	return m.trades, m.err
}

type mockExplorer struct {
	transfers []chain.TokenTransfer
}

func (m *mockExplorer) FetchTokenTransfers(context.Context, string) ([]chain.TokenTransfer, error) {
	return m.transfers, nil
}

func raw(s string) json.RawMessage { return json.RawMessage(s) }

func newTestService(c Chain, e Explorer) *Service {
	n := timestamp.NewNormalizer(time.Time{})
	return NewService(c, e, n, clockwork.NewFakeClockAt(testNow), Config{
		AssetID:     "GEM",
		BurnAddress: burnAddr,
		SaleAddress: "0xsale",
	})
}

func sampleTransfers() []chain.Transfer {
	return []chain.Transfer{
		{ID: "1", Operation: "craft", From: "alice", Timestamp: raw(`1700000000000`)},
		{ID: "2", Operation: "Crafting", From: "bob", Timestamp: raw(`"2024-02-28T10:00:00Z"`)},
		{ID: "3", Operation: "morph", From: "alice", Timestamp: raw(`86400`)},
		{ID: "4", Operation: "transfer", From: "carol", To: burnAddr, Timestamp: raw(`1709000000000`)},
		{ID: "5", Operation: "burn", From: "dave", Timestamp: raw(`"not a date"`)},
		{ID: "6", Operation: "transfer", From: "erin", To: "frank", Timestamp: raw(`1709100000000`)},
	}
}

func TestActionsClassification(t *testing.T) {
	svc := newTestService(&mockChain{transfers: sampleTransfers()}, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		fetch func(context.Context) (domain.Envelope, error)
		field string
		ids   []string
	}{
		{"crafts", svc.Crafts, DatasetCrafts, []string{"1", "2"}},
		{"morphs", svc.Morphs, DatasetMorphs, []string{"3"}},
		{"burns", svc.Burns, DatasetBurns, []string{"4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := tt.fetch(ctx)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			actions := env[tt.field].([]domain.Action)
			if len(actions) != len(tt.ids) {
				t.Fatalf("got %d actions, want %d", len(actions), len(tt.ids))
			}
			for i, id := range tt.ids {
				if actions[i].ID != id {
					t.Errorf("action %d = %s, want %s", i, actions[i].ID, id)
				}
			}
			if env[domain.FieldCount] != len(tt.ids) {
				t.Errorf("count = %v, want %d", env[domain.FieldCount], len(tt.ids))
			}
			if env[domain.FieldTimestamp] != timestamp.ToISOString(testNow) {
				t.Errorf("timestamp = %v", env[domain.FieldTimestamp])
			}
		})
	}
}

func TestActionTimestampsArePlatformSeconds(t *testing.T) {
	svc := newTestService(&mockChain{transfers: sampleTransfers()}, nil)
	env, err := svc.Morphs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := env[DatasetMorphs].([]domain.Action)[0]
	if a.Timestamp != 86400 {
		t.Errorf("timestamp = %d, want 86400 platform seconds", a.Timestamp)
	}

	got, ok := svc.normalizer.Normalize(a.Timestamp)
	want := timestamp.DefaultPlatformEpoch.Add(24 * time.Hour)
	if !ok || !got.Equal(want) {
		t.Errorf("normalized = %v, want %v", got, want)
	}
}

func TestTradesVolume(t *testing.T) {
	svc := newTestService(&mockChain{trades: []chain.Trade{
		{ID: "t1", Price: "10.5", Buyer: "alice", Seller: "bob", Timestamp: raw(`1709000000000`)},
		{ID: "t2", Price: "0.25", Buyer: "bob", Seller: "carol", Timestamp: raw(`"2024-02-29T00:00:00Z"`)},
		{ID: "t3", Price: "bogus", Buyer: "dave", Seller: "erin", Timestamp: raw(`1709000000000`)},
		{ID: "t4", Price: "99", Buyer: "x", Seller: "y"},
	}}, nil)

	env, err := svc.Trades(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	trades := env[DatasetTrades].([]domain.Trade)
	if len(trades) != 3 {
		t.Fatalf("got %d trades, want 3", len(trades))
	}
	if env["totalVolume"] != "10.75" {
		t.Errorf("totalVolume = %v, want 10.75", env["totalVolume"])
	}
	if !trades[2].Price.Equal(decimal.Zero) {
		t.Errorf("unparseable price = %s, want 0", trades[2].Price)
	}
	if trades[1].Timestamp != time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC).UnixMilli() {
		t.Errorf("ISO timestamp not converted to millis: %d", trades[1].Timestamp)
	}
}

func TestSales(t *testing.T) {
	svc := newTestService(&mockChain{}, &mockExplorer{transfers: []chain.TokenTransfer{
		{TxHash: "a", From: "alice", To: "0xSALE", Value: "100", Timestamp: "2024-02-20T08:00:00Z"},
		{TxHash: "b", From: "bob", To: "0xsale", Value: "50.5", Timestamp: "1708416000000"},
		{TxHash: "c", From: "carol", To: "0xother", Value: "7", Timestamp: "2024-02-20T08:00:00Z"},
		{TxHash: "d", From: "dave", To: "0xsale", Value: "1", Timestamp: ""},
	}})

	env, err := svc.Sales(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sales := env[DatasetSales].([]domain.Sale)
	if len(sales) != 2 {
		t.Fatalf("got %d sales, want 2", len(sales))
	}
	if env["totalRaised"] != "150.5" {
		t.Errorf("totalRaised = %v, want 150.5", env["totalRaised"])
	}
	if sales[0].TimestampISO != "2024-02-20T08:00:00.000Z" {
		t.Errorf("timestampISO = %s", sales[0].TimestampISO)
	}
}

func TestSalesWithoutExplorer(t *testing.T) {
	svc := newTestService(&mockChain{}, nil)
	if _, err := svc.Sales(context.Background()); err == nil {
		t.Fatal("expected error without explorer")
	}
	for _, d := range svc.Definitions() {
		if d.Name == DatasetSales {
			t.Error("sales registered without explorer")
		}
	}
}

func TestActiveUsers(t *testing.T) {
	svc := newTestService(&mockChain{
		transfers: sampleTransfers(),
		trades: []chain.Trade{
			{ID: "t1", Buyer: "alice", Seller: "zoe", Timestamp: raw(`1709200000000`)},
		},
	}, nil)

	env, err := svc.ActiveUsers(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	users := env["users"].([]domain.ActiveUser)

	// dave's only action has no timestamp; the burn address never counts.
	byAddr := make(map[string]domain.ActiveUser)
	for _, u := range users {
		byAddr[u.Address] = u
	}
	for _, addr := range []string{"alice", "bob", "carol", "erin", "zoe"} {
		if _, ok := byAddr[addr]; !ok {
			t.Errorf("missing user %s", addr)
		}
	}
	if _, ok := byAddr["dave"]; ok {
		t.Error("dave should be absent")
	}
	if len(users) != 5 {
		t.Errorf("got %d users, want 5", len(users))
	}
	if a := byAddr["alice"]; a.Actions != 3 || a.Timestamp != 1709200000000 {
		t.Errorf("alice = %+v, want 3 actions last seen at trade", a)
	}
	if users[0].Timestamp < users[len(users)-1].Timestamp {
		t.Error("users not sorted by last seen, newest first")
	}
}

func TestFetchErrorPropagates(t *testing.T) {
	boom := errors.New("node down")
	svc := newTestService(&mockChain{err: boom}, nil)
	for _, d := range svc.Definitions() {
		if _, err := d.Fetch(context.Background()); !errors.Is(err, boom) {
			t.Errorf("%s: error = %v, want %v", d.Name, err, boom)
		}
	}
}

func TestDefinitions(t *testing.T) {
	svc := newTestService(&mockChain{}, &mockExplorer{})
	names := make(map[string]bool)
	for _, d := range svc.Definitions() {
		if d.Fetch == nil {
			t.Errorf("%s has no fetcher", d.Name)
		}
		names[d.Name] = true
	}
	for _, want := range []string{DatasetTrades, DatasetCrafts, DatasetMorphs, DatasetBurns, DatasetSales, DatasetActiveUsers} {
		if !names[want] {
			t.Errorf("missing dataset %s", want)
		}
	}
}
