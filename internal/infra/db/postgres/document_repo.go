package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	domain "github.com/bryanwahyu/medcoder/internal/domain/documents"
	"github.com/bryanwahyu/medcoder/internal/infra/db/dbcodec"
)

type DocumentRepository struct{ db *sql.DB }

var _ domain.Repository = (*DocumentRepository)(nil)

func NewDocumentRepository(db *sql.DB) *DocumentRepository { return &DocumentRepository{db: db} }

const documentColumns = `id::text, user_id, file_name, media_type, page_count,
       icd_parent_codes::text, icd_specified_codes::text, cpt_codes::text, modifiers::text, hcpcs_codes::text,
       artifact_url, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.MedicalDocument, error) {
	var d domain.MedicalDocument
	var id string
	var cols dbcodec.Columns
	if err := row.Scan(
		&id, &d.UserID, &d.FileName, &d.MediaType, &d.PageCount,
		&cols.Parents, &cols.Specified, &cols.CPT, &cols.Modifiers, &cols.HCPCS,
		&d.ArtifactURL, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.ID = domain.DocumentID(id)
	if err := cols.Decode(&d); err != nil {
		return nil, err
	}
	return &d, nil
}

// validID keeps malformed ids away from the UUID column, where they would be a type error
func validID(id domain.DocumentID) bool {
	_, err := uuid.Parse(string(id))
	return err == nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// Save inserts a new document
func (r *DocumentRepository) Save(ctx context.Context, d *domain.MedicalDocument) error {
	const q = `
INSERT INTO medical_documents
(id, user_id, file_name, media_type, page_count,
 icd_parent_codes, icd_specified_codes, cpt_codes, modifiers, hcpcs_codes,
 artifact_url, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,
        $6,$7,$8,$9,$10,
        $11,$12,$13);`
	cols, err := dbcodec.Encode(d)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		string(d.ID), d.UserID, dbcodec.DashIfEmpty(d.FileName), d.MediaType, d.PageCount,
		cols.Parents, cols.Specified, cols.CPT, cols.Modifiers, cols.HCPCS,
		d.ArtifactURL, orNow(d.CreatedAt), orNow(d.UpdatedAt),
	)
	return err
}

// Get by ID + user
func (r *DocumentRepository) Get(ctx context.Context, userID string, id domain.DocumentID) (*domain.MedicalDocument, error) {
	if !validID(id) {
		return nil, sql.ErrNoRows
	}
	q := `SELECT ` + documentColumns + `
FROM medical_documents
WHERE user_id=$1 AND id=$2
LIMIT 1;`
	return scanDocument(r.db.QueryRowContext(ctx, q, userID, string(id)))
}

// Paginate with offset + limit, newest first
func (r *DocumentRepository) Paginate(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	page, pageSize, offset := dbcodec.Offset(page, pageSize)
	q := `SELECT ` + documentColumns + `
FROM medical_documents
WHERE user_id=$1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3;`
	rows, err := r.db.QueryContext(ctx, q, userID, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	docs := []*domain.MedicalDocument{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return domain.PaginatedResult{}, fmt.Errorf("scanning row: %w", err)
		}
		docs = append(docs, d)
	}
	if err = rows.Err(); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("iterating rows: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM medical_documents WHERE user_id=$1`, userID).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}
	return domain.PaginatedResult{
		Data:       docs,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: dbcodec.TotalPages(total, pageSize),
	}, nil
}

// Update rewrites the code sets of a document
func (r *DocumentRepository) Update(ctx context.Context, d *domain.MedicalDocument) error {
	if !validID(d.ID) {
		return sql.ErrNoRows
	}
	const q = `
UPDATE medical_documents
SET icd_parent_codes = $1,
    icd_specified_codes = $2,
    cpt_codes = $3,
    modifiers = $4,
    hcpcs_codes = $5,
    artifact_url = $6,
    updated_at = $7
WHERE user_id = $8 AND id = $9;`
	cols, err := dbcodec.Encode(d)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q,
		cols.Parents, cols.Specified, cols.CPT, cols.Modifiers, cols.HCPCS,
		d.ArtifactURL, orNow(d.UpdatedAt),
		d.UserID, string(d.ID),
	)
	return affected(res, err)
}

func (r *DocumentRepository) Delete(ctx context.Context, userID string, id domain.DocumentID) error {
	if !validID(id) {
		return sql.ErrNoRows
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM medical_documents WHERE user_id=$1 AND id=$2`, userID, string(id))
	return affected(res, err)
}

func (r *DocumentRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM medical_documents WHERE user_id=$1`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func affected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
