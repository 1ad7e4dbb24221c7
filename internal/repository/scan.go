package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bbuddy/scan-relay-go/internal/database"
	"github.com/bbuddy/scan-relay-go/internal/model"
)

type ScanEventRepository interface {
	FindByID(ctx context.Context, id string) (*model.ScanEvent, error)
	FindRecent(ctx context.Context, limit, offset int) ([]model.ScanEvent, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, params model.CreateScanEventParams) (*model.ScanEvent, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ScanEventRepository
}

type scanEventRepo struct {
	db database.DBTX
}

func NewScanEventRepository(db *sqlx.DB) ScanEventRepository {
	return &scanEventRepo{db: db}
}

func (r *scanEventRepo) WithTx(tx *sqlx.Tx) ScanEventRepository {
	return &scanEventRepo{db: tx}
}

func (r *scanEventRepo) FindByID(ctx context.Context, id string) (*model.ScanEvent, error) {
	var event model.ScanEvent
	err := r.db.GetContext(ctx, &event, `
		SELECT * FROM scan_events WHERE id = $1
	`, id)
	return HandleNotFound(&event, err)
}

func (r *scanEventRepo) FindRecent(ctx context.Context, limit, offset int) ([]model.ScanEvent, error) {
	events := []model.ScanEvent{}
	err := r.db.SelectContext(ctx, &events, `
		SELECT * FROM scan_events
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *scanEventRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM scan_events`)
	return count, err
}

func (r *scanEventRepo) Create(ctx context.Context, params model.CreateScanEventParams) (*model.ScanEvent, error) {
	var event model.ScanEvent
	err := r.db.GetContext(ctx, &event, `
		INSERT INTO scan_events (id, barcode, price, best_before_in_days, status, upstream_status, client_ip)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *
	`, params.ID, params.Barcode, params.Price, params.BestBeforeInDays, params.Status, params.UpstreamStatus, params.ClientIP)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *scanEventRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM scan_events WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
