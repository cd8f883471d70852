package mysql

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/bryanwahyu/medcoder/internal/domain/documents"
	"github.com/bryanwahyu/medcoder/internal/infra/db/dbcodec"
)

type FailureRepository struct {
	db *sql.DB
}

var _ domain.FailureRepository = (*FailureRepository)(nil)

func NewFailureRepository(db *sql.DB) *FailureRepository { return &FailureRepository{db: db} }

func (r *FailureRepository) Save(ctx context.Context, f *domain.ProcessingFailure) error {
	const q = `
INSERT INTO processing_failures
  (user_id, file_name, stage, kind, message, details_json, created_at)
VALUES (?,?,?,?,?,?,?)
`
	created := f.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := r.db.ExecContext(ctx, q,
		dbcodec.DashIfEmpty(f.UserID),
		dbcodec.DashIfEmpty(f.FileName),
		dbcodec.DashIfEmpty(f.Stage),
		dbcodec.DashIfEmpty(f.Kind),
		dbcodec.DashIfEmpty(f.Message),
		dbcodec.DetailsJSON(f.DetailsJSON),
		created.UTC(),
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		f.ID = id
	}
	return nil
}

func (r *FailureRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.ProcessingFailure, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, user_id, file_name, stage, kind, message, details_json, created_at
FROM processing_failures
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?;`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []*domain.ProcessingFailure{}
	for rows.Next() {
		var f domain.ProcessingFailure
		if err := rows.Scan(&f.ID, &f.UserID, &f.FileName, &f.Stage, &f.Kind, &f.Message, &f.DetailsJSON, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}
