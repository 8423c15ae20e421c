package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	contractx "github.com/tanpawarit/Chative-Billing-Assistant/agent/contract"
)

// billingHistoryRow mirrors the billing_history table. Charges and usage
// share the details jsonb column.
type billingHistoryRow struct {
	bun.BaseModel `bun:"table:billing_history,alias:bh"`

	ID               int64            `bun:"id,pk,autoincrement"`
	UserID           string           `bun:"user_id,notnull"`
	BillingMonth     string           `bun:"billing_month,notnull"`
	SubscriptionInfo SubscriptionInfo `bun:"subscription_info,type:jsonb"`
	Details          recordDetails    `bun:"details,type:jsonb"`
}

type recordDetails struct {
	Charges
	Usage
}

func (row *billingHistoryRow) toRecord() Record {
	return Record{
		UserID:       row.UserID,
		PeriodKey:    row.BillingMonth,
		Subscription: row.SubscriptionInfo,
		Charges:      row.Details.Charges,
		Usage:        row.Details.Usage,
	}
}

func rowFromRecord(r Record) *billingHistoryRow {
	return &billingHistoryRow{
		UserID:           r.UserID,
		BillingMonth:     r.PeriodKey,
		SubscriptionInfo: r.Subscription,
		Details:          recordDetails{Charges: r.Charges, Usage: r.Usage},
	}
}

// BunStore keeps billing records in Postgres through bun.
type BunStore struct {
	db *bun.DB
}

func NewBunStore(db *bun.DB) (*BunStore, error) {
	if db == nil {
		return nil, errors.New("bun db is required")
	}
	return &BunStore{db: db}, nil
}

// CreateSchema creates the billing_history table and its unique key when
// missing.
func (s *BunStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().
		Model((*billingHistoryRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return storageErr("create billing_history", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*billingHistoryRow)(nil)).
		Index("billing_history_user_month_idx").
		Unique().
		Column("user_id", "billing_month").
		IfNotExists().
		Exec(ctx); err != nil {
		return storageErr("create billing_history index", err)
	}
	return nil
}

// Insert seeds one record.
func (s *BunStore) Insert(ctx context.Context, r Record) error {
	if _, err := s.db.NewInsert().Model(rowFromRecord(r)).Exec(ctx); err != nil {
		return storageErr("insert billing record", err)
	}
	return nil
}

func (s *BunStore) GetRecords(ctx context.Context, userID string) ([]Record, error) {
	var rows []billingHistoryRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("user_id = ?", userID).
		Order("billing_month ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, storageErr("select billing records", err)
	}

	out := make([]Record, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

func (s *BunStore) GetRecord(ctx context.Context, userID, periodKey string) (*Record, error) {
	var row billingHistoryRow
	err := s.db.NewSelect().
		Model(&row).
		Where("user_id = ?", userID).
		Where("billing_month = ?", periodKey).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user=%s period=%s", ErrRecordNotFound, userID, periodKey)
	}
	if err != nil {
		return nil, storageErr("select billing record", err)
	}
	r := row.toRecord()
	return &r, nil
}

// UpdateRecord replaces subscription_info and, when the patch carries
// charges, merges them into details so usage fields survive.
func (s *BunStore) UpdateRecord(ctx context.Context, userID, periodKey string, patch RecordPatch) error {
	sub, err := json.Marshal(patch.Subscription)
	if err != nil {
		return fmt.Errorf("marshal subscription info: %w", err)
	}

	q := s.db.NewUpdate().
		Model((*billingHistoryRow)(nil)).
		Set("subscription_info = ?::jsonb", string(sub)).
		Where("user_id = ?", userID).
		Where("billing_month = ?", periodKey)

	if patch.Charges != nil {
		charges, err := json.Marshal(patch.Charges)
		if err != nil {
			return fmt.Errorf("marshal charges: %w", err)
		}
		q = q.Set("details = COALESCE(details, '{}'::jsonb) || ?::jsonb", string(charges))
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return storageErr("update billing record", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update billing record", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user=%s period=%s", ErrRecordNotFound, userID, periodKey)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", contractx.ErrStorage, op, err)
}
