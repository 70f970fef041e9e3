package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/notify"
)

// PoolRegistry upserts pools on create_pair and resolves
// pair_contract -> pool+tokens. On creation it publishes a pair_created
// notification on the bus (spec §4.3).
type PoolRegistry struct {
	db   *DB
	bus  *notify.Bus
	log  *zap.Logger
}

// NewPoolRegistry builds a PoolRegistry.
func NewPoolRegistry(db *DB, bus *notify.Bus, log *zap.Logger) *PoolRegistry {
	return &PoolRegistry{db: db, bus: bus, log: log}
}

// UpsertPoolParams carries everything needed to create (or no-op upsert)
// a pool row.
type UpsertPoolParams struct {
	PairContract    string
	FactoryContract string
	BaseTokenID     int64
	BaseDenom       string
	QuoteTokenID    int64
	QuoteDenom      string
	PairType        model.PairType
	Creator         string
	CreateTxHash    string
	CreateHeight    int64
}

// UpsertPool is atomic on pair_contract conflict. It resolves
// (dex_id, chain_id) from dex_catalogue by factory_contract, inserting
// an UnknownDEX row on first sight of an unrecognized factory so the
// pool's foreign key is always satisfiable.
func (r *PoolRegistry) UpsertPool(ctx context.Context, p UpsertPoolParams) (int64, error) {
	dexID, chainID, err := r.resolveDex(ctx, p.FactoryContract)
	if err != nil {
		return 0, fmt.Errorf("resolve dex: %w", err)
	}

	isUzigQuote := p.QuoteDenom == model.NativeQuoteDenom

	var (
		poolID  int64
		created bool
	)
	err = r.db.Conn.QueryRowContext(ctx, `
		INSERT INTO pools (
			pair_contract, dex_id, chain_id, base_token_id, quote_token_id,
			pair_type, is_uzig_quote, creator, create_tx_hash, create_height
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (pair_contract) DO UPDATE SET pair_contract = EXCLUDED.pair_contract
		RETURNING id, (xmax = 0) AS inserted`,
		p.PairContract, dexID, chainID, p.BaseTokenID, p.QuoteTokenID,
		p.PairType, isUzigQuote, p.Creator, p.CreateTxHash, p.CreateHeight,
	).Scan(&poolID, &created)
	if err != nil {
		return 0, fmt.Errorf("upsert pool %s: %w", p.PairContract, err)
	}

	if created {
		r.bus.Publish(model.TopicPairCreated, model.PairCreatedPayload{
			PoolID:       poolID,
			PairContract: p.PairContract,
			BaseDenom:    p.BaseDenom,
			QuoteDenom:   p.QuoteDenom,
			BaseTokenID:  p.BaseTokenID,
			QuoteTokenID: p.QuoteTokenID,
			IsUzigQuote:  isUzigQuote,
		})
	}

	return poolID, nil
}

// resolveDex looks up (dex_id, chain_id) by factory contract, inserting
// an UnknownDEX placeholder row when the factory is not yet catalogued.
func (r *PoolRegistry) resolveDex(ctx context.Context, factoryContract string) (int64, int64, error) {
	if factoryContract == "" {
		return 0, 0, nil // UnknownDEX row has id 0 (seeded in schema)
	}

	var dexID, chainID int64
	err := r.db.Conn.QueryRowContext(ctx,
		`SELECT id, chain_id FROM dex_catalogue WHERE factory_contract = $1`, factoryContract,
	).Scan(&dexID, &chainID)
	if err == nil {
		return dexID, chainID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, 0, err
	}

	r.log.Warn("pool registry: unknown factory, auto-inserting UnknownDEX", zap.String("factory", factoryContract))
	err = r.db.Conn.QueryRowContext(ctx, `
		INSERT INTO dex_catalogue (name, factory_contract, chain_id)
		VALUES ('UnknownDEX', $1, 0)
		ON CONFLICT (factory_contract) DO UPDATE SET factory_contract = EXCLUDED.factory_contract
		RETURNING id, chain_id`, factoryContract,
	).Scan(&dexID, &chainID)
	if err != nil {
		return 0, 0, err
	}
	return dexID, chainID, nil
}

// PoolWithTokens returns the full pool+token triple, or nil if absent.
func (r *PoolRegistry) PoolWithTokens(ctx context.Context, pairContract string) (*model.Pool, error) {
	var p model.Pool
	var baseDenom, quoteDenom string
	err := r.db.Conn.QueryRowContext(ctx, `
		SELECT p.id, p.pair_contract, p.dex_id, p.chain_id, p.base_token_id, p.quote_token_id,
		       bt.denom, qt.denom, p.pair_type, p.is_uzig_quote, p.creator, p.create_tx_hash,
		       p.create_height, p.created_at
		FROM pools p
		JOIN tokens bt ON bt.id = p.base_token_id
		JOIN tokens qt ON qt.id = p.quote_token_id
		WHERE p.pair_contract = $1`, pairContract,
	).Scan(&p.ID, &p.PairContract, &p.DexID, &p.ChainID, &p.BaseTokenID, &p.QuoteTokenID,
		&baseDenom, &quoteDenom, &p.PairType, &p.IsUzigQuote, &p.Creator, &p.CreateTxHash,
		&p.CreateHeight, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pool with tokens %s: %w", pairContract, err)
	}
	p.BaseDenom = baseDenom
	p.QuoteDenom = quoteDenom
	return &p, nil
}

// PoolByID fetches a pool by numeric id, for callers that already
// resolved the id via the in-memory cache.
func (r *PoolRegistry) PoolByID(ctx context.Context, id int64) (*model.Pool, error) {
	var p model.Pool
	var baseDenom, quoteDenom string
	err := r.db.Conn.QueryRowContext(ctx, `
		SELECT p.id, p.pair_contract, p.dex_id, p.chain_id, p.base_token_id, p.quote_token_id,
		       bt.denom, qt.denom, p.pair_type, p.is_uzig_quote, p.creator, p.create_tx_hash,
		       p.create_height, p.created_at
		FROM pools p
		JOIN tokens bt ON bt.id = p.base_token_id
		JOIN tokens qt ON qt.id = p.quote_token_id
		WHERE p.id = $1`, id,
	).Scan(&p.ID, &p.PairContract, &p.DexID, &p.ChainID, &p.BaseTokenID, &p.QuoteTokenID,
		&baseDenom, &quoteDenom, &p.PairType, &p.IsUzigQuote, &p.Creator, &p.CreateTxHash,
		&p.CreateHeight, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pool by id %d: %w", id, err)
	}
	p.BaseDenom = baseDenom
	p.QuoteDenom = quoteDenom
	return &p, nil
}
