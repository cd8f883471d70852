package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	domain "github.com/bryanwahyu/medcoder/internal/domain/documents"
	"github.com/bryanwahyu/medcoder/internal/infra/db/dbcodec"
)

type DocumentRepository struct {
	db *sql.DB
}

var _ domain.Repository = (*DocumentRepository)(nil)

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, user_id, file_name, media_type, page_count,
       icd_parent_codes, icd_specified_codes, cpt_codes, modifiers, hcpcs_codes,
       artifact_url, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*domain.MedicalDocument, error) {
	var d domain.MedicalDocument
	var cols dbcodec.Columns
	var created, updated string
	if err := row.Scan(
		&d.ID, &d.UserID, &d.FileName, &d.MediaType, &d.PageCount,
		&cols.Parents, &cols.Specified, &cols.CPT, &cols.Modifiers, &cols.HCPCS,
		&d.ArtifactURL, &created, &updated,
	); err != nil {
		return nil, err
	}
	if err := cols.Decode(&d); err != nil {
		return nil, err
	}
	var err error
	if d.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	if d.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	return &d, nil
}

// Save inserts a new document
func (r *DocumentRepository) Save(ctx context.Context, d *domain.MedicalDocument) error {
	const q = `
INSERT INTO medical_documents
(id, user_id, file_name, media_type, page_count,
 icd_parent_codes, icd_specified_codes, cpt_codes, modifiers, hcpcs_codes,
 artifact_url, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?);`
	cols, err := dbcodec.Encode(d)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, q,
		string(d.ID), d.UserID, dbcodec.DashIfEmpty(d.FileName), d.MediaType, d.PageCount,
		cols.Parents, cols.Specified, cols.CPT, cols.Modifiers, cols.HCPCS,
		d.ArtifactURL, formatTime(d.CreatedAt), formatTime(d.UpdatedAt),
	)
	return err
}

// Get by ID + user
func (r *DocumentRepository) Get(ctx context.Context, userID string, id domain.DocumentID) (*domain.MedicalDocument, error) {
	q := `SELECT ` + documentColumns + ` FROM medical_documents WHERE user_id=? AND id=? LIMIT 1;`
	return scanDocument(r.db.QueryRowContext(ctx, q, userID, string(id)))
}

// Paginate newest first with offset + limit
func (r *DocumentRepository) Paginate(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	page, pageSize, offset := dbcodec.Offset(page, pageSize)
	q := `SELECT ` + documentColumns + ` FROM medical_documents
WHERE user_id=? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?;`
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
	if err := rows.Err(); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("iterating rows: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM medical_documents WHERE user_id=?`, userID).Scan(&total); err != nil {
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

// Update rewrites the code sets of an existing document
func (r *DocumentRepository) Update(ctx context.Context, d *domain.MedicalDocument) error {
	const q = `
UPDATE medical_documents
SET icd_parent_codes = ?,
    icd_specified_codes = ?,
    cpt_codes = ?,
    modifiers = ?,
    hcpcs_codes = ?,
    artifact_url = ?,
    updated_at = ?
WHERE user_id = ? AND id = ?;`
	cols, err := dbcodec.Encode(d)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q,
		cols.Parents, cols.Specified, cols.CPT, cols.Modifiers, cols.HCPCS,
		d.ArtifactURL, formatTime(d.UpdatedAt),
		d.UserID, string(d.ID),
	)
	return affected(res, err)
}

func (r *DocumentRepository) Delete(ctx context.Context, userID string, id domain.DocumentID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM medical_documents WHERE user_id=? AND id=?`, userID, string(id))
	return affected(res, err)
}

func (r *DocumentRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM medical_documents WHERE user_id=?`, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// affected maps "no row touched" to sql.ErrNoRows
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
