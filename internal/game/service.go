// Package game builds the dashboard datasets from raw chain and explorer records.
package game

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/mtlprog/nftdash/internal/chain"
	"github.com/mtlprog/nftdash/internal/dataset"
	"github.com/mtlprog/nftdash/internal/domain"
	"github.com/mtlprog/nftdash/internal/period"
	"github.com/mtlprog/nftdash/internal/refresh"
	"github.com/mtlprog/nftdash/internal/timestamp"
)

// Dataset names.
const (
	DatasetTrades      = "trades"
	DatasetCrafts      = "crafts"
	DatasetMorphs      = "morphs"
	DatasetBurns       = "burns"
	DatasetSales       = "sales"
	DatasetActiveUsers = "active-users"
)

// Chain provides raw game records from the chain nodes.
type Chain interface {
	FetchTransfers(ctx context.Context, assetID string) ([]chain.Transfer, error)
	FetchTrades(ctx context.Context, assetID string) ([]chain.Trade, error)
}

// Explorer provides token transfers from the secondary chain.
type Explorer interface {
	FetchTokenTransfers(ctx context.Context, contract string) ([]chain.TokenTransfer, error)
}

// Config identifies the on-chain game objects.
type Config struct {
	AssetID       string
	TokenContract string
	BurnAddress   string
	SaleAddress   string
}

// Service fetches and shapes the game datasets.
type Service struct {
	chain      Chain
	explorer   Explorer
	normalizer *timestamp.Normalizer
	clock      clockwork.Clock
	cfg        Config
}

// NewService creates a Service. explorer may be nil, in which case the sales dataset
// is not registered.
func NewService(c Chain, explorer Explorer, normalizer *timestamp.Normalizer, clock clockwork.Clock, cfg Config) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{chain: c, explorer: explorer, normalizer: normalizer, clock: clock, cfg: cfg}
}

// Definitions returns every dataset this service can build, with the field hints the
// period filter needs for each.
func (s *Service) Definitions() []dataset.Definition {
	defs := []dataset.Definition{
		{Name: DatasetTrades, Fetch: s.Trades, Options: period.Options{ArrayField: DatasetTrades}},
		{Name: DatasetCrafts, Fetch: s.actions(DatasetCrafts, domain.OperationCraft)},
		{Name: DatasetMorphs, Fetch: s.actions(DatasetMorphs, domain.OperationMorph)},
		{Name: DatasetBurns, Fetch: s.actions(DatasetBurns, domain.OperationBurn)},
		{Name: DatasetActiveUsers, Fetch: s.ActiveUsers, Options: period.Options{ArrayField: "users"}},
	}
	if s.explorer != nil {
		defs = append(defs, dataset.Definition{
			Name:    DatasetSales,
			Fetch:   s.Sales,
			Options: period.Options{ISODateField: "timestampISO", ArrayField: DatasetSales},
		})
	}
	return defs
}

// Trades returns every marketplace trade with the total volume.
func (s *Service) Trades(ctx context.Context) (domain.Envelope, error) {
	raw, err := s.chain.FetchTrades(ctx, s.cfg.AssetID)
	if err != nil {
		return nil, err
	}

	trades := make([]domain.Trade, 0, len(raw))
	for _, r := range raw {
		t, ok := s.instant(r.Timestamp)
		if !ok {
			slog.Debug("skipping trade without timestamp", "id", r.ID)
			continue
		}
		trades = append(trades, domain.Trade{
			ID:        r.ID,
			TokenID:   r.TokenID,
			Seller:    r.Seller,
			Buyer:     r.Buyer,
			Price:     domain.SafeParse(r.Price),
			Currency:  r.Currency,
			TxHash:    r.TxHash,
			Timestamp: t.UnixMilli(),
		})
	}

	volume := domain.SumBy(trades, func(t domain.Trade) decimal.Decimal { return t.Price })
	return s.envelope(DatasetTrades, trades, len(trades), "totalVolume", volume.String()), nil
}

// Crafts returns crafting actions.
func (s *Service) Crafts(ctx context.Context) (domain.Envelope, error) {
	return s.actions(DatasetCrafts, domain.OperationCraft)(ctx)
}

// Morphs returns morphing actions.
func (s *Service) Morphs(ctx context.Context) (domain.Envelope, error) {
	return s.actions(DatasetMorphs, domain.OperationMorph)(ctx)
}

// Burns returns burn actions.
func (s *Service) Burns(ctx context.Context) (domain.Envelope, error) {
	return s.actions(DatasetBurns, domain.OperationBurn)(ctx)
}

func (s *Service) actions(field string, op domain.Operation) refresh.FetchFunc {
	return func(ctx context.Context) (domain.Envelope, error) {
		transfers, err := s.chain.FetchTransfers(ctx, s.cfg.AssetID)
		if err != nil {
			return nil, err
		}

		actions := lo.FilterMap(transfers, func(tr chain.Transfer, _ int) (domain.Action, bool) {
			if s.classify(tr) != op {
				return domain.Action{}, false
			}
			t, ok := s.instant(tr.Timestamp)
			if !ok {
				slog.Debug("skipping action without timestamp", "id", tr.ID, "operation", op)
				return domain.Action{}, false
			}
			return domain.Action{
				ID:        tr.ID,
				Operation: op,
				TokenID:   tr.TokenID,
				Account:   tr.From,
				TxHash:    tr.TxHash,
				Timestamp: s.normalizer.ToPlatformSeconds(t),
			}, true
		})
		return s.envelope(field, actions, len(actions)), nil
	}
}

// Sales returns token-sale transfers into the sale address with the total raised.
func (s *Service) Sales(ctx context.Context) (domain.Envelope, error) {
	if s.explorer == nil {
		return nil, errors.New("sales: no explorer configured")
	}
	raw, err := s.explorer.FetchTokenTransfers(ctx, s.cfg.TokenContract)
	if err != nil {
		return nil, err
	}

	sales := lo.FilterMap(raw, func(tr chain.TokenTransfer, _ int) (domain.Sale, bool) {
		if s.cfg.SaleAddress != "" && !strings.EqualFold(tr.To, s.cfg.SaleAddress) {
			return domain.Sale{}, false
		}
		t, ok := s.normalizer.Normalize(tr.Timestamp)
		if !ok {
			return domain.Sale{}, false
		}
		return domain.Sale{
			TxHash:       tr.TxHash,
			Buyer:        tr.From,
			Amount:       domain.SafeParse(tr.Value),
			TimestampISO: timestamp.ToISOString(t),
		}, true
	})

	raised := domain.SumBy(sales, func(sale domain.Sale) decimal.Decimal { return sale.Amount })
	return s.envelope(DatasetSales, sales, len(sales), "totalRaised", raised.String()), nil
}

// ActiveUsers returns one record per address that traded or acted, with its
// last-seen time and number of actions.
func (s *Service) ActiveUsers(ctx context.Context) (domain.Envelope, error) {
	transfers, err := s.chain.FetchTransfers(ctx, s.cfg.AssetID)
	if err != nil {
		return nil, err
	}
	trades, err := s.chain.FetchTrades(ctx, s.cfg.AssetID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]*domain.ActiveUser)
	touch := func(addr string, raw json.RawMessage) {
		if addr == "" || strings.EqualFold(addr, s.cfg.BurnAddress) {
			return
		}
		t, ok := s.instant(raw)
		if !ok {
			return
		}
		u, ok := seen[addr]
		if !ok {
			u = &domain.ActiveUser{Address: addr}
			seen[addr] = u
		}
		u.Actions++
		u.Timestamp = max(u.Timestamp, t.UnixMilli())
	}
	for _, tr := range transfers {
		touch(tr.From, tr.Timestamp)
	}
	for _, tr := range trades {
		touch(tr.Buyer, tr.Timestamp)
		touch(tr.Seller, tr.Timestamp)
	}

	users := lo.Map(lo.Values(seen), func(u *domain.ActiveUser, _ int) domain.ActiveUser { return *u })
	slices.SortFunc(users, func(a, b domain.ActiveUser) int { return cmp.Compare(b.Timestamp, a.Timestamp) })
	return s.envelope("users", users, len(users)), nil
}

// classify maps a transfer to its game operation. Transfers into the burn address
// count as burns whatever the reported operation.
func (s *Service) classify(tr chain.Transfer) domain.Operation {
	if s.cfg.BurnAddress != "" && strings.EqualFold(tr.To, s.cfg.BurnAddress) {
		return domain.OperationBurn
	}
	if op, ok := operations[strings.ToLower(tr.Operation)]; ok {
		return op
	}
	return domain.OperationTransfer
}

var operations = map[string]domain.Operation{
	"craft":      domain.OperationCraft,
	"crafting":   domain.OperationCraft,
	"morph":      domain.OperationMorph,
	"morphing":   domain.OperationMorph,
	"burn":       domain.OperationBurn,
	"transfer":   domain.OperationTransfer,
	"sale":       domain.OperationSale,
	"trade":      domain.OperationTrade,
	"market_buy": domain.OperationTrade,
}

// instant decodes a raw timestamp of any encoding the nodes emit.
func (s *Service) instant(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return time.Time{}, false
	}
	return s.normalizer.Normalize(v)
}

func (s *Service) envelope(field string, records any, count int, extra ...string) domain.Envelope {
	env := domain.Envelope{
		field:                 records,
		domain.FieldCount:     count,
		domain.FieldTimestamp: timestamp.ToISOString(s.clock.Now()),
	}
	for i := 0; i+1 < len(extra); i += 2 {
		env[extra[i]] = extra[i+1]
	}
	return env
}
