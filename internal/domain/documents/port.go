package documents

import "context"

// Repository port (interface untuk persistence). Get, Update and Delete
// return sql.ErrNoRows when the document does not exist for the user.
type Repository interface {
	Save(ctx context.Context, d *MedicalDocument) error
	Get(ctx context.Context, userID string, id DocumentID) (*MedicalDocument, error)
	Paginate(ctx context.Context, userID string, page, pageSize int) (PaginatedResult, error)
	Update(ctx context.Context, d *MedicalDocument) error
	Delete(ctx context.Context, userID string, id DocumentID) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

// FailureRepository defines persistence for failed runs
type FailureRepository interface {
	Save(ctx context.Context, f *ProcessingFailure) error
	ListByUser(ctx context.Context, userID string, limit int) ([]*ProcessingFailure, error)
}

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Inspector checks an upload before it is processed.
type Inspector interface {
	Inspect(path string) (FileInfo, error)
}
