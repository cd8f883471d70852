package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/medcoder/internal/application"
	"github.com/bryanwahyu/medcoder/internal/domain/coding"
	domain "github.com/bryanwahyu/medcoder/internal/domain/documents"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	DefaultFailures = 50
)

// Processor runs the coding pipeline on a local file.
type Processor interface {
	ProcessICDCodes(ctx context.Context, filePath string) coding.ProcessingResult
}

// Recorder counts pipeline outcomes.
type Recorder interface {
	DocumentProcessed()
	DocumentFailed()
}

// Service implements use-cases untuk MedicalDocument
// Service is designed to be used concurrently and is thread-safe
type Service struct {
	Repo      domain.Repository
	Failures  domain.FailureRepository
	Pipeline  Processor
	Inspector domain.Inspector
	Artifacts domain.ArtifactStore // optional
	Metrics   Recorder             // optional
	Clock     application.Clock
	Log       zerolog.Logger

	// TempDir receives uploads while they are processed; empty means os.TempDir().
	TempDir string
}

// Upload processes an uploaded file and stores the resulting codes. A pipeline
// failure is recorded and returned as *documents.ProcessingError.
func (s *Service) Upload(ctx context.Context, cmd domain.UploadCommand) (*domain.MedicalDocument, error) {
	info, res, err := s.run(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		s.recordFailure(ctx, cmd, res)
		return nil, &domain.ProcessingError{Result: res}
	}

	now := s.Clock.Now().UTC()
	doc := &domain.MedicalDocument{
		ID:        domain.DocumentID(uuid.New().String()),
		UserID:    cmd.UserID,
		FileName:  cleanName(cmd.FileName),
		MediaType: info.MediaType,
		PageCount: info.PageCount,
		CreatedAt: now,
		UpdatedAt: now,
	}
	doc.ApplyCodes(res.Codes())
	doc.ArtifactURL = s.archive(ctx, doc, res)

	if err := s.Repo.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}
	s.Log.Info().
		Str("user_id", doc.UserID).
		Str("document_id", string(doc.ID)).
		Int("pages", doc.PageCount).
		Msg("document stored")
	return doc, nil
}

// Process runs the pipeline without storing anything. A failed run comes back
// as a result with status error, not as an error.
func (s *Service) Process(ctx context.Context, cmd domain.UploadCommand) (coding.ProcessingResult, error) {
	_, res, err := s.run(ctx, cmd)
	return res, err
}

func (s *Service) run(ctx context.Context, cmd domain.UploadCommand) (domain.FileInfo, coding.ProcessingResult, error) {
	tmp, err := s.stage(cmd)
	if err != nil {
		return domain.FileInfo{}, coding.ProcessingResult{}, err
	}
	defer os.Remove(tmp)

	info, err := s.Inspector.Inspect(tmp)
	if err != nil {
		return info, coding.ProcessingResult{}, err
	}

	res := s.Pipeline.ProcessICDCodes(ctx, tmp)
	if s.Metrics != nil {
		if res.OK() {
			s.Metrics.DocumentProcessed()
		} else {
			s.Metrics.DocumentFailed()
		}
	}
	return info, res, nil
}

// stage copies the upload into a temp file that keeps the original extension.
func (s *Service) stage(cmd domain.UploadCommand) (string, error) {
	if cmd.Content == nil {
		return "", fmt.Errorf("%w: no content", domain.ErrInvalidDocument)
	}
	ext := strings.ToLower(filepath.Ext(cleanName(cmd.FileName)))
	f, err := os.CreateTemp(s.TempDir, "upload-*"+ext)
	if err != nil {
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if _, err := io.Copy(f, cmd.Content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("stage upload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("stage upload: %w", err)
	}
	return f.Name(), nil
}

// archive stores the de-identified text and the result JSON. Archive errors are
// logged and leave the URL empty.
func (s *Service) archive(ctx context.Context, doc *domain.MedicalDocument, res coding.ProcessingResult) string {
	if s.Artifacts == nil {
		return ""
	}
	prefix := path.Join(doc.UserID, string(doc.ID))
	if _, err := s.Artifacts.Put(ctx, path.Join(prefix, "deidentified.txt"), []byte(res.DeidentifiedText), "text/plain; charset=utf-8"); err != nil {
		s.Log.Warn().Err(err).Str("document_id", string(doc.ID)).Msg("archive text")
		return ""
	}
	body, err := json.Marshal(res)
	if err != nil {
		s.Log.Warn().Err(err).Msg("encode result")
		return ""
	}
	url, err := s.Artifacts.Put(ctx, path.Join(prefix, "result.json"), body, "application/json")
	if err != nil {
		s.Log.Warn().Err(err).Str("document_id", string(doc.ID)).Msg("archive result")
		return ""
	}
	return url
}

func (s *Service) recordFailure(ctx context.Context, cmd domain.UploadCommand, res coding.ProcessingResult) {
	if s.Failures == nil {
		return
	}
	f := &domain.ProcessingFailure{
		UserID:      cmd.UserID,
		FileName:    cleanName(cmd.FileName),
		Stage:       res.Stage,
		Kind:        res.Kind,
		Message:     res.Message,
		DetailsJSON: res.Detail,
		CreatedAt:   s.Clock.Now().UTC(),
	}
	if err := s.Failures.Save(ctx, f); err != nil {
		s.Log.Error().Err(err).Str("user_id", cmd.UserID).Msg("record processing failure")
	}
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "document"
	}
	return name
}

// List returns the user's documents, newest first.
func (s *Service) List(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return s.Repo.Paginate(ctx, userID, page, pageSize)
}

// Get ambil 1 document by id
func (s *Service) Get(ctx context.Context, userID string, id domain.DocumentID) (*domain.MedicalDocument, error) {
	return s.Repo.Get(ctx, userID, id)
}

// UpdateCodes applies an explicit edit of the stored code sets.
func (s *Service) UpdateCodes(ctx context.Context, userID string, id domain.DocumentID, u domain.CodeUpdate) (*domain.MedicalDocument, error) {
	if u.Empty() {
		return nil, domain.ErrEmptyUpdate
	}
	doc, err := s.Repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	u.Apply(doc)
	doc.UpdatedAt = s.Clock.Now().UTC()
	if err := s.Repo.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes one document.
func (s *Service) Delete(ctx context.Context, userID string, id domain.DocumentID) error {
	return s.Repo.Delete(ctx, userID, id)
}

// DeleteAll removes every document of a user. It is the hook for deleting the account.
func (s *Service) DeleteAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.Repo.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.Log.Info().Str("user_id", userID).Int64("deleted", n).Msg("documents removed")
	return n, nil
}

// ListFailures returns the latest failed runs for a user.
func (s *Service) ListFailures(ctx context.Context, userID string, limit int) ([]*domain.ProcessingFailure, error) {
	if limit < 1 || limit > MaxPageSize {
		limit = DefaultFailures
	}
	return s.Failures.ListByUser(ctx, userID, limit)
}
