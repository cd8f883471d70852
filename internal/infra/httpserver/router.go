package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/medcoder/internal/domain/ai"
	"github.com/bryanwahyu/medcoder/internal/domain/coding"
	domain "github.com/bryanwahyu/medcoder/internal/domain/documents"
	"github.com/bryanwahyu/medcoder/internal/infra/httpserver/response"
	"github.com/bryanwahyu/medcoder/internal/middleware"
)

// Documents is what the router needs from the document use-cases.
type Documents interface {
	Upload(ctx context.Context, cmd domain.UploadCommand) (*domain.MedicalDocument, error)
	Process(ctx context.Context, cmd domain.UploadCommand) (coding.ProcessingResult, error)
	List(ctx context.Context, userID string, page, pageSize int) (domain.PaginatedResult, error)
	Get(ctx context.Context, userID string, id domain.DocumentID) (*domain.MedicalDocument, error)
	UpdateCodes(ctx context.Context, userID string, id domain.DocumentID, u domain.CodeUpdate) (*domain.MedicalDocument, error)
	Delete(ctx context.Context, userID string, id domain.DocumentID) error
	DeleteAll(ctx context.Context, userID string) (int64, error)
	ListFailures(ctx context.Context, userID string, limit int) ([]*domain.ProcessingFailure, error)
}

type Options struct {
	APIKeys        map[string]string // api key -> user id
	AllowedOrigins []string
	Limiter        *middleware.RateLimiter // nil disables rate limiting
	Metrics        *middleware.Metrics
	Health         map[string]middleware.HealthChecker
	MaxUploadBytes int64
	Log            zerolog.Logger
}

type Router struct {
	docs      Documents
	maxUpload int64
	log       zerolog.Logger
}

const (
	uploadField      = "file"
	defaultMaxUpload = 25 << 20
)

func NewRouter(docs Documents, opts Options) http.Handler {
	r := &Router{docs: docs, maxUpload: opts.MaxUploadBytes, log: opts.Log}
	if r.maxUpload <= 0 {
		r.maxUpload = defaultMaxUpload
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = middleware.NewMetrics()
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestLogger(opts.Log))
	mux.Use(metrics.Middleware)
	if len(opts.AllowedOrigins) > 0 {
		mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   opts.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/ready", middleware.ReadinessHandler)
	mux.Get("/live", middleware.LivenessHandler)

	mux.Group(func(api chi.Router) {
		api.Use(middleware.APIKeyAuth(opts.APIKeys))
		if opts.Limiter != nil {
			api.Use(opts.Limiter.Middleware)
		}
		api.Get("/metrics", metrics.Handler)

		api.Route("/v1/{user}", func(rt chi.Router) {
			rt.Use(middleware.RequireMatchingUser)
			rt.Post("/medical-documents/upload", r.wrap(r.handleUpload))
			rt.Post("/medical-documents/process", r.wrap(r.handleProcess))
			rt.Get("/medical-documents", r.wrap(r.handleList))
			rt.Delete("/medical-documents", r.wrap(r.handleDeleteAll))
			rt.Get("/medical-documents/{id}", r.wrap(r.handleGet))
			rt.Patch("/medical-documents/{id}", r.wrap(r.handleUpdate))
			rt.Delete("/medical-documents/{id}", r.wrap(r.handleDelete))
			rt.Get("/processing-failures", r.wrap(r.handleFailures))
		})
	})

	mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		_ = response.Fail(w, http.StatusNotFound, response.CodeNotFound, "route not found", nil, nil)
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		_ = response.Fail(w, http.StatusMethodNotAllowed, response.CodeError, "method not allowed", nil, nil)
	})
	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// fieldError is a request validation failure on one input field.
type fieldError struct {
	field string
	msg   string
}

func (e *fieldError) Error() string { return fmt.Sprintf("%s: %s", e.field, e.msg) }

func invalidField(field string, err error) error {
	return &fieldError{field: field, msg: err.Error()}
}

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		var (
			fe     *fieldError
			pe     *domain.ProcessingError
			tooBig *http.MaxBytesError
		)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_ = response.Fail(w, http.StatusNotFound, response.CodeNotFound, "not found", nil, nil)
		case errors.As(err, &fe):
			_ = response.Fail(w, http.StatusBadRequest, response.CodeValidation, "invalid request",
				map[string]string{fe.field: fe.msg}, nil)
		case errors.As(err, &tooBig):
			_ = response.Fail(w, http.StatusRequestEntityTooLarge, response.CodeValidation,
				fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit), map[string]string{uploadField: "too large"}, nil)
		case errors.Is(err, domain.ErrUnsupportedMediaType),
			errors.Is(err, domain.ErrInvalidDocument),
			errors.Is(err, domain.ErrTooManyPages),
			errors.Is(err, domain.ErrEmptyUpdate):
			_ = response.Fail(w, http.StatusBadRequest, response.CodeValidation, err.Error(), nil, nil)
		case errors.Is(err, ai.ErrQuotaExceeded):
			_ = response.Fail(w, http.StatusTooManyRequests, response.CodeQuotaExceeded, "ai quota exceeded", nil, failureDetail(pe, err))
		case errors.As(err, &pe):
			_ = response.Fail(w, http.StatusBadGateway, response.CodeProcessingFailed, pe.Error(), nil, failureDetail(pe, err))
		default:
			r.log.Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
			_ = response.Fail(w, http.StatusInternalServerError, response.CodeError, "internal error", nil, nil)
		}
	}
}

// failureDetail is the stage diagnostic of a failed run.
func failureDetail(pe *domain.ProcessingError, err error) any {
	if pe == nil && !errors.As(err, &pe) {
		return nil
	}
	res := pe.Result
	d := map[string]any{"stage": res.Stage, "kind": res.Kind, "message": res.Message}
	if res.Detail != "" {
		if json.Valid([]byte(res.Detail)) {
			d["detail"] = json.RawMessage(res.Detail)
		} else {
			d["detail"] = res.Detail
		}
	}
	return d
}

func userOf(req *http.Request) string { return chi.URLParam(req, "user") }

func documentID(req *http.Request) (domain.DocumentID, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateDocumentID(id); err != nil {
		return "", invalidField("id", err)
	}
	return domain.DocumentID(strings.ToLower(id)), nil
}

// uploadCommand reads the multipart "file" part. The caller closes the returned file.
func (r *Router) uploadCommand(w http.ResponseWriter, req *http.Request) (domain.UploadCommand, func(), error) {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload)
	if err := req.ParseMultipartForm(8 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return domain.UploadCommand{}, nil, tooBig
		}
		return domain.UploadCommand{}, nil, invalidField(uploadField, errors.New("multipart form with a file is required"))
	}
	file, header, err := req.FormFile(uploadField)
	if err != nil {
		_ = req.MultipartForm.RemoveAll()
		return domain.UploadCommand{}, nil, invalidField(uploadField, errors.New("file is required"))
	}
	done := func() {
		file.Close()
		_ = req.MultipartForm.RemoveAll()
	}
	if err := middleware.ValidateFileName(header.Filename); err != nil {
		done()
		return domain.UploadCommand{}, nil, invalidField(uploadField, err)
	}
	return domain.UploadCommand{
		UserID:   userOf(req),
		FileName: middleware.SanitizeString(header.Filename),
		Content:  file,
	}, done, nil
}

// POST /v1/{user}/medical-documents/upload
func (r *Router) handleUpload(w http.ResponseWriter, req *http.Request) error {
	cmd, done, err := r.uploadCommand(w, req)
	if err != nil {
		return err
	}
	defer done()

	doc, err := r.docs.Upload(req.Context(), cmd)
	if err != nil {
		return err
	}
	return response.OK(w, http.StatusCreated, response.CodeCreated, "document processed", doc)
}

// POST /v1/{user}/medical-documents/process
func (r *Router) handleProcess(w http.ResponseWriter, req *http.Request) error {
	cmd, done, err := r.uploadCommand(w, req)
	if err != nil {
		return err
	}
	defer done()

	res, err := r.docs.Process(req.Context(), cmd)
	if err != nil {
		return err
	}
	if !res.OK() {
		return &domain.ProcessingError{Result: res}
	}
	return response.OK(w, http.StatusOK, response.CodeOK, "document processed", res)
}

// GET /v1/{user}/medical-documents?page=&page_size=
func (r *Router) handleList(w http.ResponseWriter, req *http.Request) error {
	q := req.URL.Query()
	page, err := middleware.ParsePositive("page", q.Get("page"))
	if err != nil {
		return invalidField("page", err)
	}
	size, err := middleware.ParsePositive("page_size", q.Get("page_size"))
	if err != nil {
		return invalidField("page_size", err)
	}

	list, err := r.docs.List(req.Context(), userOf(req), page, size)
	if err != nil {
		return err
	}
	return response.OK(w, http.StatusOK, response.CodeOK, "OK", list)
}

// GET /v1/{user}/medical-documents/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := documentID(req)
	if err != nil {
		return err
	}
	doc, err := r.docs.Get(req.Context(), userOf(req), id)
	if err != nil {
		return err
	}
	return response.OK(w, http.StatusOK, response.CodeOK, "OK", doc)
}

// PATCH /v1/{user}/medical-documents/{id}
// Body: any subset of {"icd_parent_codes", "icd_specified_codes", "cpt_codes", "modifiers", "hcpcs_codes"}
func (r *Router) handleUpdate(w http.ResponseWriter, req *http.Request) error {
	id, err := documentID(req)
	if err != nil {
		return err
	}
	var body domain.CodeUpdate
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return invalidField("body", err)
	}

	doc, err := r.docs.UpdateCodes(req.Context(), userOf(req), id, body)
	if err != nil {
		return err
	}
	return response.OK(w, http.StatusOK, response.CodeOK, "document updated", doc)
}

// DELETE /v1/{user}/medical-documents/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := documentID(req)
	if err != nil {
		return err
	}
	if err := r.docs.Delete(req.Context(), userOf(req), id); err != nil {
		return err
	}
	return response.OK(w, http.StatusOK, response.CodeOK, "document deleted", map[string]string{"id": string(id)})
}

// DELETE /v1/{user}/medical-documents
func (r *Router) handleDeleteAll(w http.ResponseWriter, req *http.Request) error {
	n, err := r.docs.DeleteAll(req.Context(), userOf(req))
	if err != nil {
		return err
	}
	return response.OK(w, http.StatusOK, response.CodeOK, "documents deleted", map[string]int64{"deleted": n})
}

// GET /v1/{user}/processing-failures?limit=
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	limit, err := middleware.ParsePositive("limit", req.URL.Query().Get("limit"))
	if err != nil {
		return invalidField("limit", err)
	}
	list, err := r.docs.ListFailures(req.Context(), userOf(req), limit)
	if err != nil {
		return err
	}
	return response.OK(w, http.StatusOK, response.CodeOK, "OK", list)
}
