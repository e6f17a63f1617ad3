package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"log"

	"github.com/regmarket/namereg/internal/core/domain"
	"github.com/regmarket/namereg/internal/core/ports"
	"github.com/regmarket/namereg/internal/infrastructure/metrics"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepository implements ports.RegistryRepository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InitSchema applies the bundled schema. All statements are idempotent.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schemaSQL)
	return err
}

func (r *PostgresRepository) GetDomain(ctx context.Context, key domain.NameKey) (domain.Record, error) {
	query := `SELECT name, owner, target, expiry, bid_bidder, bid_amount, bid_id FROM domains WHERE key = $1`

	var rec domain.Record
	var amount, bidID int64
	errRow := r.db.QueryRowContext(ctx, query, key.String()).Scan(&rec.Name, &rec.Owner, &rec.Target, &rec.Expiry, &rec.Bid.Bidder, &amount, &bidID)
	if errors.Is(errRow, sql.ErrNoRows) {
		// Never registered, same shape as fully expired and overwritten.
		return domain.Record{}, nil
	}
	if errRow != nil {
		return domain.Record{}, errRow
	}
	rec.Bid.Amount = uint64(amount) // #nosec G115
	rec.Bid.ID = uint64(bidID)      // #nosec G115
	return rec, nil
}

func (r *PostgresRepository) SaveDomain(ctx context.Context, key domain.NameKey, rec domain.Record) error {
	query := `INSERT INTO domains (key, name, owner, target, expiry, bid_bidder, bid_amount, bid_id)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  ON CONFLICT (key) DO UPDATE SET
			      name = EXCLUDED.name, owner = EXCLUDED.owner, target = EXCLUDED.target,
			      expiry = EXCLUDED.expiry, bid_bidder = EXCLUDED.bid_bidder,
			      bid_amount = EXCLUDED.bid_amount, bid_id = EXCLUDED.bid_id`
	_, err := r.db.ExecContext(ctx, query, key.String(), rec.Name, string(rec.Owner), string(rec.Target), rec.Expiry,
		string(rec.Bid.Bidder), int64(rec.Bid.Amount), int64(rec.Bid.ID)) // #nosec G115
	return err
}

func (r *PostgresRepository) ListDomainsByOwner(ctx context.Context, owner domain.Account) ([]domain.DomainSummary, error) {
	query := `SELECT name, key, target, expiry FROM domains WHERE owner = $1 ORDER BY name ASC`

	rows, errQuery := r.db.QueryContext(ctx, query, string(owner))
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var sums []domain.DomainSummary
	for rows.Next() {
		var s domain.DomainSummary
		if errScan := rows.Scan(&s.Name, &s.Key, &s.Target, &s.Expiry); errScan != nil {
			return nil, errScan
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}

func (r *PostgresRepository) NextBidID(ctx context.Context) (uint64, error) {
	var id int64
	errRow := r.db.QueryRowContext(ctx, `SELECT nextval('bid_ids')`).Scan(&id)
	if errRow != nil {
		return 0, errRow
	}
	return uint64(id), nil // #nosec G115
}

func (r *PostgresRepository) EscrowTotal(ctx context.Context) (uint64, error) {
	var total int64
	errRow := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(bid_amount), 0) FROM domains`).Scan(&total)
	if errRow != nil {
		return 0, errRow
	}
	return uint64(total), nil // #nosec G115
}

func (r *PostgresRepository) GetFees(ctx context.Context) (domain.Fees, error) {
	query := `SELECT initial_fee, renew_fee_per_period FROM registrar_fees WHERE id = 1`

	var initial, renew int64
	errRow := r.db.QueryRowContext(ctx, query).Scan(&initial, &renew)
	if errors.Is(errRow, sql.ErrNoRows) {
		// Fees are unset until governance seeds them.
		return domain.Fees{}, nil
	}
	if errRow != nil {
		return domain.Fees{}, errRow
	}
	return domain.Fees{Initial: uint64(initial), RenewPerPeriod: uint64(renew)}, nil // #nosec G115
}

func (r *PostgresRepository) SaveFees(ctx context.Context, fees domain.Fees) error {
	query := `INSERT INTO registrar_fees (id, initial_fee, renew_fee_per_period) VALUES (1, $1, $2)
			  ON CONFLICT (id) DO UPDATE SET initial_fee = EXCLUDED.initial_fee, renew_fee_per_period = EXCLUDED.renew_fee_per_period`
	_, err := r.db.ExecContext(ctx, query, int64(fees.Initial), int64(fees.RenewPerPeriod)) // #nosec G115
	return err
}

// SaveEvents stores the events of one operation atomically.
func (r *PostgresRepository) SaveEvents(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return errTx
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction: %v", errRollback)
		}
	}()

	query := `INSERT INTO domain_events (id, key, type, name, owner, bidder, target, recipient, amount, expiry, periods, bid_id, initial_fee, renew_fee_per_period, at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`
	for _, ev := range events {
		_, errExec := tx.ExecContext(ctx, query, ev.ID, ev.Key, string(ev.Type), ev.Name,
			string(ev.Owner), string(ev.Bidder), string(ev.Target), string(ev.To),
			int64(ev.Amount), ev.Expiry, int64(ev.Periods), int64(ev.BidID),
			int64(ev.InitialFee), int64(ev.RenewFeePerPeriod), ev.At) // #nosec G115
		if errExec != nil {
			return errExec
		}
	}

	return tx.Commit()
}

func (r *PostgresRepository) ListEvents(ctx context.Context, key domain.NameKey, limit int) ([]domain.Event, error) {
	query := `SELECT id, key, type, name, owner, bidder, target, recipient, amount, expiry, periods, bid_id, initial_fee, renew_fee_per_period, at
	          FROM domain_events WHERE key = $1 ORDER BY seq DESC LIMIT $2`

	rows, errQuery := r.db.QueryContext(ctx, query, key.String(), limit)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		var amount, periods, bidID, initialFee, renewFee int64
		if errScan := rows.Scan(&ev.ID, &ev.Key, &ev.Type, &ev.Name, &ev.Owner, &ev.Bidder, &ev.Target, &ev.To,
			&amount, &ev.Expiry, &periods, &bidID, &initialFee, &renewFee, &ev.At); errScan != nil {
			return nil, errScan
		}
		ev.Amount = uint64(amount)              // #nosec G115
		ev.Periods = uint64(periods)            // #nosec G115
		ev.BidID = uint64(bidID)                // #nosec G115
		ev.InitialFee = uint64(initialFee)      // #nosec G115
		ev.RenewFeePerPeriod = uint64(renewFee) // #nosec G115
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *PostgresRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	query := `SELECT id, account, name, key_hash, key_prefix, role, active, created_at, expires_at FROM api_keys WHERE key_hash = $1`

	var k domain.APIKey
	var expiresAt sql.NullTime
	errRow := r.db.QueryRowContext(ctx, query, keyHash).Scan(&k.ID, &k.Account, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.Active, &k.CreatedAt, &expiresAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		k.ExpiresAt = &t
	}
	return &k, nil
}

func (r *PostgresRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	query := `INSERT INTO api_keys (id, account, name, key_hash, key_prefix, role, active, created_at, expires_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, key.ID, string(key.Account), key.Name, key.KeyHash, key.KeyPrefix, string(key.Role), key.Active, key.CreatedAt, key.ExpiresAt)
	return err
}

func (r *PostgresRepository) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	query := `SELECT id, account, name, key_hash, key_prefix, role, active, created_at, expires_at FROM api_keys ORDER BY created_at ASC`

	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var keys []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		var expiresAt sql.NullTime
		if errScan := rows.Scan(&k.ID, &k.Account, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Role, &k.Active, &k.CreatedAt, &expiresAt); errScan != nil {
			return nil, errScan
		}
		if expiresAt.Valid {
			t := expiresAt.Time
			k.ExpiresAt = &t
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *PostgresRepository) RevokeAPIKey(ctx context.Context, id string) error {
	query := `UPDATE api_keys SET active = FALSE WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	metrics.DBConnectionsActive.Set(float64(r.db.Stats().OpenConnections))
	return r.db.PingContext(ctx)
}

var _ ports.RegistryRepository = (*PostgresRepository)(nil)
