// Package memory implements the domain ledger stores with in-memory maps.
// Used for testing and development. Not suitable for production (no
// persistence).
//
// A single mutex guards the whole store, so units of work are fully
// serialized: concurrent callers never observe each other's partial writes,
// and every unit of work sees the committed state left by the previous one.
// Rollback is implemented by snapshotting the maps at the start of the unit
// of work and restoring the snapshot when the callback fails.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/polyledger/ledgerd/internal/domain"
)

// Store is an in-memory domain.Ledger.
type Store struct {
	mu         sync.Mutex
	portfolios map[string]domain.Portfolio // by id
	names      map[string]string           // portfolio name -> id
	positions  map[string]domain.Position  // by id
	txns       []domain.Transaction        // append-only, insertion order
}

// NewStore creates an empty in-memory ledger.
func NewStore() *Store {
	return &Store{
		portfolios: make(map[string]domain.Portfolio),
		names:      make(map[string]string),
		positions:  make(map[string]domain.Position),
	}
}

type snapshot struct {
	portfolios map[string]domain.Portfolio
	names      map[string]string
	positions  map[string]domain.Position
	txns       []domain.Transaction
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		portfolios: make(map[string]domain.Portfolio, len(s.portfolios)),
		names:      make(map[string]string, len(s.names)),
		positions:  make(map[string]domain.Position, len(s.positions)),
		txns:       make([]domain.Transaction, len(s.txns)),
	}
	for k, v := range s.portfolios {
		snap.portfolios[k] = v
	}
	for k, v := range s.names {
		snap.names[k] = v
	}
	for k, v := range s.positions {
		snap.positions[k] = v
	}
	copy(snap.txns, s.txns)
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.portfolios = snap.portfolios
	s.names = snap.names
	s.positions = snap.positions
	s.txns = snap.txns
}

// WithinTx runs fn as one atomic unit of work. The store mutex is held for
// the whole unit, so concurrent units of work against the same assets are
// serialized rather than interleaved.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(&ledgerTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type ledgerTx struct {
	s *Store
}

func (t *ledgerTx) Portfolios() domain.PortfolioStore     { return &portfolioStore{s: t.s} }
func (t *ledgerTx) Positions() domain.PositionStore       { return &positionStore{s: t.s} }
func (t *ledgerTx) Transactions() domain.TransactionStore { return &transactionStore{s: t.s} }

// --- portfolios ---

type portfolioStore struct {
	s *Store
}

func (ps *portfolioStore) Create(_ context.Context, p domain.Portfolio) error {
	if _, ok := ps.s.names[p.Name]; ok {
		return domain.ErrConflict
	}
	ps.s.portfolios[p.ID] = p
	ps.s.names[p.Name] = p.ID
	return nil
}

func (ps *portfolioStore) Get(_ context.Context, id string) (domain.Portfolio, error) {
	p, ok := ps.s.portfolios[id]
	if !ok {
		return domain.Portfolio{}, domain.ErrNotFound
	}
	return p, nil
}

func (ps *portfolioStore) GetForUpdate(ctx context.Context, id string) (domain.Portfolio, error) {
	// The store mutex already serializes whole units of work.
	return ps.Get(ctx, id)
}

func (ps *portfolioStore) GetByName(_ context.Context, name string) (domain.Portfolio, error) {
	id, ok := ps.s.names[name]
	if !ok {
		return domain.Portfolio{}, domain.ErrNotFound
	}
	return ps.s.portfolios[id], nil
}

func (ps *portfolioStore) Update(_ context.Context, p domain.Portfolio) error {
	if _, ok := ps.s.portfolios[p.ID]; !ok {
		return domain.ErrNotFound
	}
	ps.s.portfolios[p.ID] = p
	return nil
}

// --- positions ---

type positionStore struct {
	s *Store
}

func (ps *positionStore) Create(_ context.Context, pos domain.Position) error {
	if pos.Status == domain.PositionStatusOpen {
		for _, existing := range ps.s.positions {
			if existing.PortfolioID == pos.PortfolioID &&
				existing.AssetID == pos.AssetID &&
				existing.Status == domain.PositionStatusOpen {
				return domain.ErrConflict
			}
		}
	}
	ps.s.positions[pos.ID] = pos
	return nil
}

func (ps *positionStore) Update(_ context.Context, pos domain.Position) error {
	if _, ok := ps.s.positions[pos.ID]; !ok {
		return domain.ErrNotFound
	}
	ps.s.positions[pos.ID] = pos
	return nil
}

func (ps *positionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	pos, ok := ps.s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (ps *positionStore) GetOpen(_ context.Context, portfolioID, assetID string) (domain.Position, error) {
	for _, pos := range ps.s.positions {
		if pos.PortfolioID == portfolioID && pos.AssetID == assetID && pos.Status == domain.PositionStatusOpen {
			return pos, nil
		}
	}
	return domain.Position{}, domain.ErrNotFound
}

func (ps *positionStore) ListOpen(_ context.Context, portfolioID string) ([]domain.Position, error) {
	var out []domain.Position
	for _, pos := range ps.s.positions {
		if pos.PortfolioID == portfolioID && pos.Status == domain.PositionStatusOpen {
			out = append(out, pos)
		}
	}
	sortPositions(out)
	return out, nil
}

func (ps *positionStore) ListByPortfolio(_ context.Context, portfolioID string, opts domain.ListOpts) ([]domain.Position, error) {
	var out []domain.Position
	for _, pos := range ps.s.positions {
		if pos.PortfolioID != portfolioID {
			continue
		}
		if opts.Since != nil && pos.OpenedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && pos.OpenedAt.After(*opts.Until) {
			continue
		}
		out = append(out, pos)
	}
	sortPositions(out)
	return paginate(out, opts), nil
}

func (ps *positionStore) DeleteByPortfolio(_ context.Context, portfolioID string) error {
	for id, pos := range ps.s.positions {
		if pos.PortfolioID == portfolioID {
			delete(ps.s.positions, id)
		}
	}
	return nil
}

// --- transactions ---

type transactionStore struct {
	s *Store
}

func (ts *transactionStore) Append(_ context.Context, txn domain.Transaction) error {
	ts.s.txns = append(ts.s.txns, txn)
	return nil
}

func (ts *transactionStore) ListByPortfolio(_ context.Context, portfolioID string, opts domain.ListOpts) ([]domain.Transaction, error) {
	var out []domain.Transaction
	for _, txn := range ts.s.txns {
		if txn.PortfolioID != portfolioID {
			continue
		}
		if opts.Since != nil && txn.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && txn.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, txn)
	}
	return paginate(out, opts), nil
}

func (ts *transactionStore) CountByPortfolio(_ context.Context, portfolioID string) (int64, error) {
	var n int64
	for _, txn := range ts.s.txns {
		if txn.PortfolioID == portfolioID {
			n++
		}
	}
	return n, nil
}

func (ts *transactionStore) DeleteByPortfolio(_ context.Context, portfolioID string) error {
	kept := ts.s.txns[:0]
	for _, txn := range ts.s.txns {
		if txn.PortfolioID != portfolioID {
			kept = append(kept, txn)
		}
	}
	ts.s.txns = kept
	return nil
}

// --- helpers ---

func sortPositions(positions []domain.Position) {
	// Stable order for deterministic reads: oldest first, id as tiebreaker.
	sort.Slice(positions, func(i, j int) bool {
		if !positions[i].OpenedAt.Equal(positions[j].OpenedAt) {
			return positions[i].OpenedAt.Before(positions[j].OpenedAt)
		}
		return positions[i].ID < positions[j].ID
	})
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}

// Compile-time interface check.
var _ domain.Ledger = (*Store)(nil)
