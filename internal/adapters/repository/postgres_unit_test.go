package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/regmarket/namereg/internal/core/domain"
)

func TestPostgresRepository_Unit(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()

	key, _, err := domain.NormalizeName("abc")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	hexKey := key.String()

	// 1. Test GetDomain
	t.Run("GetDomain", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"name", "owner", "target", "expiry", "bid_bidder", "bid_amount", "bid_id"}).
			AddRow("abc", "alice", "alice-wallet", int64(1700000000), "bob", int64(50), int64(7))

		mock.ExpectQuery(`SELECT (.+) FROM domains WHERE key = \$1`).
			WithArgs(hexKey).
			WillReturnRows(rows)

		rec, err := repo.GetDomain(ctx, key)
		if err != nil {
			t.Errorf("GetDomain failed: %v", err)
		}
		if rec.Owner != "alice" || rec.Expiry != 1700000000 {
			t.Errorf("Unexpected record: %+v", rec)
		}
		if rec.Bid.Bidder != "bob" || rec.Bid.Amount != 50 || rec.Bid.ID != 7 {
			t.Errorf("Unexpected bid: %+v", rec.Bid)
		}
	})

	// 2. Test GetDomain for a key with no row
	t.Run("GetDomainMissing", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM domains WHERE key = \$1`).
			WithArgs(hexKey).
			WillReturnError(sql.ErrNoRows)

		rec, err := repo.GetDomain(ctx, key)
		if err != nil {
			t.Errorf("GetDomain missing row should not error: %v", err)
		}
		if rec != (domain.Record{}) {
			t.Errorf("Expected zero record, got %+v", rec)
		}
	})

	// 3. Test SaveDomain upsert
	t.Run("SaveDomain", func(t *testing.T) {
		rec := domain.Record{
			Name:   "abc",
			Owner:  "alice",
			Target: "alice-wallet",
			Expiry: 1700000000,
			Bid:    domain.Bid{Bidder: "bob", Amount: 50, ID: 7},
		}
		mock.ExpectExec(`INSERT INTO domains`).
			WithArgs(hexKey, "abc", "alice", "alice-wallet", int64(1700000000), "bob", int64(50), int64(7)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := repo.SaveDomain(ctx, key, rec); err != nil {
			t.Errorf("SaveDomain failed: %v", err)
		}
	})

	// 4. Test ListDomainsByOwner
	t.Run("ListDomainsByOwner", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"name", "key", "target", "expiry"}).
			AddRow("abc", hexKey, "alice-wallet", int64(1700000000))

		mock.ExpectQuery(`SELECT (.+) FROM domains WHERE owner = \$1 ORDER BY name ASC`).
			WithArgs("alice").
			WillReturnRows(rows)

		sums, err := repo.ListDomainsByOwner(ctx, "alice")
		if err != nil {
			t.Errorf("ListDomainsByOwner failed: %v", err)
		}
		if len(sums) != 1 || sums[0].Name != "abc" || sums[0].Key != hexKey {
			t.Errorf("Unexpected summaries: %+v", sums)
		}
	})

	// 5. Test NextBidID
	t.Run("NextBidID", func(t *testing.T) {
		mock.ExpectQuery(`SELECT nextval\('bid_ids'\)`).
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(int64(42)))

		id, err := repo.NextBidID(ctx)
		if err != nil || id != 42 {
			t.Errorf("NextBidID = %d, %v; want 42, nil", id, err)
		}
	})

	// 6. Test EscrowTotal
	t.Run("EscrowTotal", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COALESCE\(SUM\(bid_amount\), 0\) FROM domains`).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(int64(150)))

		total, err := repo.EscrowTotal(ctx)
		if err != nil || total != 150 {
			t.Errorf("EscrowTotal = %d, %v; want 150, nil", total, err)
		}
	})

	// 7. Test Fees
	t.Run("Fees", func(t *testing.T) {
		mock.ExpectQuery(`SELECT initial_fee, renew_fee_per_period FROM registrar_fees WHERE id = 1`).
			WillReturnRows(sqlmock.NewRows([]string{"initial_fee", "renew_fee_per_period"}).AddRow(int64(100), int64(10)))

		fees, err := repo.GetFees(ctx)
		if err != nil || fees.Initial != 100 || fees.RenewPerPeriod != 10 {
			t.Errorf("GetFees = %+v, %v", fees, err)
		}

		// Unseeded fees read back as zero.
		mock.ExpectQuery(`SELECT initial_fee, renew_fee_per_period FROM registrar_fees WHERE id = 1`).
			WillReturnError(sql.ErrNoRows)

		fees, err = repo.GetFees(ctx)
		if err != nil || fees != (domain.Fees{}) {
			t.Errorf("GetFees unseeded = %+v, %v; want zero, nil", fees, err)
		}

		mock.ExpectExec(`INSERT INTO registrar_fees`).
			WithArgs(int64(100), int64(10)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := repo.SaveFees(ctx, domain.Fees{Initial: 100, RenewPerPeriod: 10}); err != nil {
			t.Errorf("SaveFees failed: %v", err)
		}
	})

	// 8. Test SaveEvents transaction
	t.Run("SaveEvents", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO domain_events`).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO domain_events`).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		events := []domain.Event{
			{ID: "e1", Type: domain.EventRegistered, Key: hexKey, Name: "abc", Owner: "alice", Expiry: 1700000000, At: time.Now()},
			{ID: "e2", Type: domain.EventResolverSet, Key: hexKey, Name: "abc", Target: "alice-wallet", At: time.Now()},
		}
		if err := repo.SaveEvents(ctx, events); err != nil {
			t.Errorf("SaveEvents failed: %v", err)
		}

		// Empty batches touch nothing.
		if err := repo.SaveEvents(ctx, nil); err != nil {
			t.Errorf("SaveEvents empty failed: %v", err)
		}
	})

	// 9. Test ListEvents
	t.Run("ListEvents", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "key", "type", "name", "owner", "bidder", "target", "recipient", "amount", "expiry", "periods", "bid_id", "initial_fee", "renew_fee_per_period", "at"}).
			AddRow("e2", hexKey, "bid_placed", "abc", "", "bob", "", "", int64(50), int64(0), int64(0), int64(7), int64(0), int64(0), time.Now()).
			AddRow("e1", hexKey, "registered", "abc", "alice", "", "", "", int64(0), int64(1700000000), int64(0), int64(0), int64(0), int64(0), time.Now())

		mock.ExpectQuery(`SELECT (.+) FROM domain_events WHERE key = \$1 ORDER BY seq DESC LIMIT \$2`).
			WithArgs(hexKey, 100).
			WillReturnRows(rows)

		events, err := repo.ListEvents(ctx, key, 100)
		if err != nil {
			t.Errorf("ListEvents failed: %v", err)
		}
		if len(events) != 2 || events[0].Type != domain.EventBidPlaced || events[0].Amount != 50 {
			t.Errorf("Unexpected events: %+v", events)
		}
	})

	// 10. Test API Keys
	t.Run("APIKeys", func(t *testing.T) {
		expires := time.Now().AddDate(1, 0, 0)
		apiKey := &domain.APIKey{
			ID:        "k1",
			Account:   "alice",
			Name:      "ci-key",
			KeyHash:   "deadbeef",
			KeyPrefix: "nreg_abc",
			Role:      domain.RoleWriter,
			Active:    true,
			CreatedAt: time.Now(),
			ExpiresAt: &expires,
		}
		mock.ExpectExec(`INSERT INTO api_keys`).
			WithArgs(apiKey.ID, "alice", apiKey.Name, apiKey.KeyHash, apiKey.KeyPrefix, "writer", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := repo.CreateAPIKey(ctx, apiKey); err != nil {
			t.Errorf("CreateAPIKey failed: %v", err)
		}

		mock.ExpectQuery(`SELECT (.+) FROM api_keys WHERE key_hash = \$1`).
			WithArgs("deadbeef").
			WillReturnRows(sqlmock.NewRows([]string{"id", "account", "name", "key_hash", "key_prefix", "role", "active", "created_at", "expires_at"}).
				AddRow("k1", "alice", "ci-key", "deadbeef", "nreg_abc", "writer", true, time.Now(), expires))

		got, err := repo.GetAPIKeyByHash(ctx, "deadbeef")
		if err != nil || got == nil || got.Account != "alice" || got.ExpiresAt == nil {
			t.Errorf("GetAPIKeyByHash = %+v, %v", got, err)
		}

		mock.ExpectQuery(`SELECT (.+) FROM api_keys WHERE key_hash = \$1`).
			WithArgs("unknown").
			WillReturnError(sql.ErrNoRows)

		got, err = repo.GetAPIKeyByHash(ctx, "unknown")
		if err != nil || got != nil {
			t.Errorf("GetAPIKeyByHash unknown = %+v, %v; want nil, nil", got, err)
		}

		mock.ExpectQuery(`SELECT (.+) FROM api_keys ORDER BY created_at ASC`).
			WillReturnRows(sqlmock.NewRows([]string{"id", "account", "name", "key_hash", "key_prefix", "role", "active", "created_at", "expires_at"}).
				AddRow("k1", "alice", "ci-key", "deadbeef", "nreg_abc", "writer", true, time.Now(), nil))

		keys, err := repo.ListAPIKeys(ctx)
		if err != nil || len(keys) != 1 || keys[0].ExpiresAt != nil {
			t.Errorf("ListAPIKeys = %+v, %v", keys, err)
		}

		mock.ExpectExec(`UPDATE api_keys SET active = FALSE WHERE id = \$1`).
			WithArgs("k1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		if err := repo.RevokeAPIKey(ctx, "k1"); err != nil {
			t.Errorf("RevokeAPIKey failed: %v", err)
		}
	})

	// 11. Test Ping
	t.Run("Ping", func(t *testing.T) {
		mock.ExpectPing()
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	// 12. Error Paths
	t.Run("ErrorPaths", func(t *testing.T) {
		dbErr := errors.New("db error")

		// GetDomain Error
		mock.ExpectQuery(`SELECT`).WillReturnError(dbErr)
		if _, err := repo.GetDomain(ctx, key); err == nil {
			t.Errorf("GetDomain should surface db error")
		}

		// ListDomainsByOwner Error
		mock.ExpectQuery(`SELECT`).WillReturnError(dbErr)
		repo.ListDomainsByOwner(ctx, "alice")

		// NextBidID Error
		mock.ExpectQuery(`SELECT`).WillReturnError(dbErr)
		if _, err := repo.NextBidID(ctx); err == nil {
			t.Errorf("NextBidID should surface db error")
		}

		// EscrowTotal Error
		mock.ExpectQuery(`SELECT`).WillReturnError(dbErr)
		repo.EscrowTotal(ctx)

		// ListEvents Error
		mock.ExpectQuery(`SELECT`).WillReturnError(dbErr)
		repo.ListEvents(ctx, key, 10)

		// ListAPIKeys Error
		mock.ExpectQuery(`SELECT`).WillReturnError(dbErr)
		repo.ListAPIKeys(ctx)

		// rows.Scan failure in ListDomainsByOwner
		mock.ExpectQuery(`SELECT`).WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("only-one-column"))
		repo.ListDomainsByOwner(ctx, "alice")

		// SaveEvents Transaction Begin Error
		mock.ExpectBegin().WillReturnError(dbErr)
		if err := repo.SaveEvents(ctx, []domain.Event{{ID: "e1"}}); err == nil {
			t.Errorf("SaveEvents should surface begin error")
		}

		// SaveEvents insert failure rolls back
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO domain_events`).WillReturnError(dbErr)
		mock.ExpectRollback()
		if err := repo.SaveEvents(ctx, []domain.Event{{ID: "e1"}}); err == nil {
			t.Errorf("SaveEvents should surface insert error")
		}
	})
}
