package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/chain"
	"github.com/zarazoya/Degenter-Indexer-CI-CD/internal/model"
)

// TokenRegistry upserts tokens by denom and enriches them via the LCD
// client. Grounded on dbSaveService/database.DB's upsert style.
type TokenRegistry struct {
	db  *DB
	lcd chain.LCDClient
	log *zap.Logger
}

// NewTokenRegistry builds a TokenRegistry. lcd may be nil if metadata
// enrichment is not wired (e.g. in tests exercising only the trade path).
func NewTokenRegistry(db *DB, lcd chain.LCDClient, log *zap.Logger) *TokenRegistry {
	return &TokenRegistry{db: db, lcd: lcd, log: log}
}

// UpsertTokenMinimal idempotently inserts-or-returns a token id for
// denom. New rows get exponent=6 and type=factory, except the native
// quote denom (uzig), which is typed native.
func (r *TokenRegistry) UpsertTokenMinimal(ctx context.Context, denom string) (int64, error) {
	tokenType := model.TokenFactory
	if denom == model.NativeQuoteDenom {
		tokenType = model.TokenNative
	}

	var id int64
	err := r.db.Conn.QueryRowContext(ctx, `
		INSERT INTO tokens (denom, type, exponent)
		VALUES ($1, $2, $3)
		ON CONFLICT (denom) DO UPDATE SET denom = EXCLUDED.denom
		RETURNING id`,
		denom, tokenType, model.DefaultExponent,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert token %s: %w", denom, err)
	}
	return id, nil
}

// SetTokenMetaFromLCD fills name/symbol/display/exponent/supply via the
// LCD client. Race-tolerant: two concurrent calls converge on the same
// row without a constraint violation because this is a plain UPDATE by
// denom, not an insert. Failures are logged, never propagated, per spec.
func (r *TokenRegistry) SetTokenMetaFromLCD(ctx context.Context, denom string) {
	if r.lcd == nil {
		return
	}
	meta, err := r.lcd.TokenMetaByDenom(ctx, denom)
	if err != nil {
		r.log.Warn("token meta fetch failed", zap.String("denom", denom), zap.Error(err))
		return
	}

	_, err = r.db.Conn.ExecContext(ctx, `
		UPDATE tokens SET
			name = $2, symbol = $3, display = $4, exponent = $5,
			total_supply = $6, updated_at = now()
		WHERE denom = $1`,
		denom, nullIfEmpty(meta.Name), nullIfEmpty(meta.Symbol), nullIfEmpty(meta.Display),
		meta.Exponent, nullIfEmpty(meta.TotalSupply),
	)
	if err != nil {
		r.log.Warn("token meta update failed", zap.String("denom", denom), zap.Error(err))
	}
}

// SetTokenHolderCount idempotently records a holder-count observation.
func (r *TokenRegistry) SetTokenHolderCount(ctx context.Context, tokenID int64, count int64) error {
	_, err := r.db.Conn.ExecContext(ctx, `
		UPDATE tokens SET holder_count = $2, holder_count_updated_at = $3 WHERE id = $1`,
		tokenID, count, time.Now().UTC())
	return err
}

// SetTokenSecurityFlags idempotently records a security-scan observation.
func (r *TokenRegistry) SetTokenSecurityFlags(ctx context.Context, tokenID int64, flags model.SecurityFlags) error {
	body, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("marshal security flags: %w", err)
	}
	_, err = r.db.Conn.ExecContext(ctx, `
		UPDATE tokens SET security_flags = $2, security_checked_at = $3 WHERE id = $1`,
		tokenID, body, time.Now().UTC())
	return err
}

// GetByID fetches one token by id. Returns sql.ErrNoRows if absent.
func (r *TokenRegistry) GetByID(ctx context.Context, id int64) (model.Token, error) {
	var t model.Token
	var name, symbol, display, supply sql.NullString
	err := r.db.Conn.QueryRowContext(ctx, `
		SELECT id, denom, type, name, symbol, display, exponent, total_supply, created_at, updated_at
		FROM tokens WHERE id = $1`, id,
	).Scan(&t.ID, &t.Denom, &t.Type, &name, &symbol, &display, &t.Exponent, &supply, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Token{}, err
	}
	t.Name = nullToPtr(name)
	t.Symbol = nullToPtr(symbol)
	t.Display = nullToPtr(display)
	t.TotalSupply = nullToPtr(supply)
	return t, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullToPtr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}
