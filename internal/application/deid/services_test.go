package deid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bryanwahyu/medcoder/internal/application"
	domain "github.com/bryanwahyu/medcoder/internal/domain/deid"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

type fakeOCR struct {
	fn func(ctx context.Context, filePath, workDir string) (string, error)
}

func (f *fakeOCR) RunOCR(ctx context.Context, filePath, workDir string) (string, error) {
	return f.fn(ctx, filePath, workDir)
}

// memStore is a remote file store kept in a map.
type memStore struct {
	mu           sync.Mutex
	root         string
	files        map[string][]byte
	uploadErr    error
	downloadErrs []error
	// hollow downloads report success without writing anything locally.
	hollow bool
}

func newMemStore(root string) *memStore {
	return &memStore{root: root, files: map[string][]byte{}}
}

func (m *memStore) Upload(ctx context.Context, localPath, subdir string) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", pipeline.New(pipeline.ErrMissingArtifact, err)
	}
	remote := path.Join(m.root, subdir, filepath.Base(localPath))
	m.mu.Lock()
	m.files[remote] = data
	m.mu.Unlock()
	return remote, nil
}

func (m *memStore) Download(ctx context.Context, remotePath, localDest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.downloadErrs) > 0 {
		err := m.downloadErrs[0]
		m.downloadErrs = m.downloadErrs[1:]
		return err
	}
	data, ok := m.files[remotePath]
	if !ok {
		return pipeline.New(pipeline.ErrMissingArtifact, os.ErrNotExist)
	}
	if m.hollow {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(localDest), 0o700); err != nil {
		return err
	}
	return os.WriteFile(localDest, data, 0o600)
}

type fakeRedactor struct {
	fn func(ctx context.Context, staged, outputDir string) (domain.RedactionResult, error)
}

func (f *fakeRedactor) Redact(ctx context.Context, staged, outputDir string) (domain.RedactionResult, error) {
	return f.fn(ctx, staged, outputDir)
}

func ocrReturning(text string) *fakeOCR {
	return &fakeOCR{fn: func(ctx context.Context, filePath, workDir string) (string, error) {
		p := filepath.Join(workDir, "ocr.txt")
		return p, os.WriteFile(p, []byte(text), 0o600)
	}}
}

// redactorOver replaces "depression" with [REDACTED] in the staged file and
// writes the result into the output dir of store.
func redactorOver(store *memStore) *fakeRedactor {
	return &fakeRedactor{fn: func(ctx context.Context, staged, outputDir string) (domain.RedactionResult, error) {
		store.mu.Lock()
		defer store.mu.Unlock()
		in, ok := store.files[staged]
		if !ok {
			return domain.RedactionResult{}, pipeline.New(pipeline.ErrMissingArtifact, fmt.Errorf("no %s", staged))
		}
		out := path.Join(outputDir, "REDACTED_"+path.Base(staged))
		store.files[out] = []byte(strings.ReplaceAll(string(in), "depression", "[REDACTED]"))
		return domain.RedactionResult{Status: "success", RedactedFile: out}, nil
	}}
}

func newService(t *testing.T, ocr domain.OCR, store *memStore, red domain.Redactor) *Service {
	return &Service{
		OCR:           ocr,
		Store:         store,
		Redactor:      red,
		Retry:         application.RetryPolicy{MaxAttempts: 3, InitialInterval: time.Millisecond},
		Log:           zerolog.Nop(),
		RemoteRoot:    "/opt/files",
		StagingSubdir: "hipaa_input",
		OutputSubdir:  "hipaa_output",
		WorkDir:       t.TempDir(),
	}
}

func writeInput(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "sample.pdf")
	if err := os.WriteFile(p, []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunSuccess(t *testing.T) {
	store := newMemStore("/opt/files")
	svc := newService(t, ocrReturning("Patient has depression."), store, redactorOver(store))

	out, err := svc.Run(context.Background(), writeInput(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != "Patient has [REDACTED]." {
		t.Errorf("text = %q", out.Text)
	}
	if out.StagedPath != "/opt/files/hipaa_input/ocr.txt" {
		t.Errorf("staged = %s", out.StagedPath)
	}
	if out.RedactedRemotePath != "/opt/files/hipaa_output/REDACTED_ocr.txt" {
		t.Errorf("redacted remote = %s", out.RedactedRemotePath)
	}
	if !strings.HasPrefix(out.RedactedLocalPath, out.WorkDir) {
		t.Errorf("download outside work dir: %s", out.RedactedLocalPath)
	}
	want := []domain.State{
		domain.StateStart, domain.StateOCRRunning, domain.StateOCRDone,
		domain.StateUploading, domain.StateRedacting, domain.StateDownloading, domain.StateDone,
	}
	if !reflect.DeepEqual(out.Trace, want) {
		t.Errorf("trace = %v", out.Trace)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	store := newMemStore("/opt/files")
	svc := newService(t, ocrReturning("Patient has depression."), store, redactorOver(store))
	input := writeInput(t)

	first, err := svc.Run(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Run(context.Background(), input)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := os.ReadFile(first.ExtractedPath)
	b, _ := os.ReadFile(second.ExtractedPath)
	if string(a) != string(b) || first.Text != second.Text {
		t.Errorf("runs differ: %q/%q, %q/%q", a, b, first.Text, second.Text)
	}
	if first.WorkDir == second.WorkDir {
		t.Error("runs share a work dir")
	}
}

func TestRunEmptyOCRFailsAtOCR(t *testing.T) {
	store := newMemStore("/opt/files")
	calls := 0
	ocr := &fakeOCR{fn: func(ctx context.Context, filePath, workDir string) (string, error) {
		calls++
		return "", &pipeline.Error{Kind: pipeline.ErrMalformedResponse, Err: domain.ErrEmptyOCRResult}
	}}
	svc := newService(t, ocr, store, redactorOver(store))

	out, err := svc.Run(context.Background(), writeInput(t))
	if !errors.Is(err, domain.ErrOCROutput) {
		t.Fatalf("err = %v", err)
	}
	if pipeline.StageOf(err) != pipeline.StageOCR {
		t.Errorf("stage = %q", pipeline.StageOf(err))
	}
	if calls != 1 {
		t.Errorf("malformed output retried %d times", calls)
	}
	if out.Trace[len(out.Trace)-1] != domain.StateFailed {
		t.Errorf("trace = %v", out.Trace)
	}
	if len(store.files) != 0 {
		t.Error("nothing should be staged after an OCR failure")
	}
}

func TestRunMissingRedactedFile(t *testing.T) {
	store := newMemStore("/opt/files")
	red := &fakeRedactor{fn: func(ctx context.Context, staged, outputDir string) (domain.RedactionResult, error) {
		return domain.RedactionResult{Status: "success", Raw: []byte(`{"status":"success"}`)}, nil
	}}
	svc := newService(t, ocrReturning("text"), store, red)

	_, err := svc.Run(context.Background(), writeInput(t))
	if !errors.Is(err, pipeline.ErrMissingArtifact) || !errors.Is(err, domain.ErrMissingRedactedFilePath) {
		t.Fatalf("err = %v", err)
	}
	if pipeline.StageOf(err) != pipeline.StageRedaction {
		t.Errorf("stage = %q", pipeline.StageOf(err))
	}
	if pipeline.DetailOf(err) != `{"status":"success"}` {
		t.Errorf("detail = %q", pipeline.DetailOf(err))
	}
}

func TestRunRedactionFailureKeepsDetail(t *testing.T) {
	store := newMemStore("/opt/files")
	body := `{"status":"failed"}`
	red := &fakeRedactor{fn: func(ctx context.Context, staged, outputDir string) (domain.RedactionResult, error) {
		return domain.RedactionResult{}, &pipeline.Error{Kind: pipeline.ErrMalformedResponse, Err: domain.ErrRedactionFailed, Detail: body}
	}}
	svc := newService(t, ocrReturning("text"), store, red)

	_, err := svc.Run(context.Background(), writeInput(t))
	if pipeline.StageOf(err) != pipeline.StageRedaction || pipeline.DetailOf(err) != body {
		t.Fatalf("err = %v (stage %q detail %q)", err, pipeline.StageOf(err), pipeline.DetailOf(err))
	}
	if len(store.files) != 1 {
		t.Errorf("staged file should stay in place, store = %v", store.files)
	}
}

func TestRunRetriesTemporaryDownload(t *testing.T) {
	store := newMemStore("/opt/files")
	store.downloadErrs = []error{pipeline.Temporary(pipeline.ErrTransport, errors.New("connection reset"))}
	svc := newService(t, ocrReturning("Patient has depression."), store, redactorOver(store))

	out, err := svc.Run(context.Background(), writeInput(t))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Text != "Patient has [REDACTED]." {
		t.Errorf("text = %q", out.Text)
	}
}

func TestRunDownloadFailure(t *testing.T) {
	store := newMemStore("/opt/files")
	store.downloadErrs = []error{pipeline.New(pipeline.ErrAuth, errors.New("denied"))}
	svc := newService(t, ocrReturning("x"), store, redactorOver(store))

	_, err := svc.Run(context.Background(), writeInput(t))
	if pipeline.StageOf(err) != pipeline.StageDownload || !errors.Is(err, pipeline.ErrAuth) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunUploadFailure(t *testing.T) {
	store := newMemStore("/opt/files")
	store.uploadErr = pipeline.New(pipeline.ErrAuth, errors.New("ssh: handshake failed"))
	redactions := 0
	red := &fakeRedactor{fn: func(ctx context.Context, staged, outputDir string) (domain.RedactionResult, error) {
		redactions++
		return domain.RedactionResult{}, nil
	}}
	svc := newService(t, ocrReturning("text"), store, red)

	out, err := svc.Run(context.Background(), writeInput(t))
	if pipeline.StageOf(err) != pipeline.StageUpload || !errors.Is(err, pipeline.ErrAuth) {
		t.Fatalf("err = %v (stage %q)", err, pipeline.StageOf(err))
	}
	want := []domain.State{
		domain.StateStart, domain.StateOCRRunning, domain.StateOCRDone,
		domain.StateUploading, domain.StateFailed,
	}
	if !reflect.DeepEqual(out.Trace, want) {
		t.Errorf("trace = %v", out.Trace)
	}
	if redactions != 0 {
		t.Errorf("redactor called %d times after upload failure", redactions)
	}
}

func TestRunReadbackMissingFile(t *testing.T) {
	store := newMemStore("/opt/files")
	store.hollow = true
	svc := newService(t, ocrReturning("Patient has depression."), store, redactorOver(store))

	out, err := svc.Run(context.Background(), writeInput(t))
	if pipeline.StageOf(err) != pipeline.StageReadback || !errors.Is(err, pipeline.ErrMissingArtifact) {
		t.Fatalf("err = %v (stage %q)", err, pipeline.StageOf(err))
	}
	if out.Trace[len(out.Trace)-1] != domain.StateFailed {
		t.Errorf("trace = %v", out.Trace)
	}
	if out.Text != "" {
		t.Errorf("text = %q", out.Text)
	}
}

func TestRunWorkDirFailure(t *testing.T) {
	store := newMemStore("/opt/files")
	ocrCalls := 0
	ocr := &fakeOCR{fn: func(ctx context.Context, filePath, workDir string) (string, error) {
		ocrCalls++
		return "", nil
	}}
	svc := newService(t, ocr, store, redactorOver(store))
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	svc.WorkDir = blocker

	out, err := svc.Run(context.Background(), writeInput(t))
	if pipeline.StageOf(err) != pipeline.StageWorkDir || !errors.Is(err, pipeline.ErrTransport) {
		t.Fatalf("err = %v (stage %q)", err, pipeline.StageOf(err))
	}
	if errors.Is(err, pipeline.ErrMissingArtifact) {
		t.Errorf("work dir failure reported as missing artifact: %v", err)
	}
	if out.WorkDir != "" || ocrCalls != 0 {
		t.Errorf("work dir = %q, ocr calls = %d", out.WorkDir, ocrCalls)
	}
	if !reflect.DeepEqual(out.Trace, []domain.State{domain.StateStart, domain.StateFailed}) {
		t.Errorf("trace = %v", out.Trace)
	}
}

func TestRunDropsInvalidUTF8(t *testing.T) {
	store := newMemStore("/opt/files")
	svc := newService(t, ocrReturning("ok\xff\xfe text"), store, redactorOver(store))

	out, err := svc.Run(context.Background(), writeInput(t))
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "ok text" {
		t.Errorf("text = %q", out.Text)
	}
}

func TestRunReportsResidualIdentifiers(t *testing.T) {
	store := newMemStore("/opt/files")
	svc := newService(t, ocrReturning("Call 555-123-4567 or mail a@b.com"), store, redactorOver(store))

	out, err := svc.Run(context.Background(), writeInput(t))
	if err != nil {
		t.Fatal(err)
	}
	want := []domain.ResidualFinding{{Label: "EMAIL", Count: 1}, {Label: "TELEPHONENUM", Count: 1}}
	if !reflect.DeepEqual(out.Residual, want) {
		t.Errorf("residual = %+v", out.Residual)
	}
}

func TestScanResidual(t *testing.T) {
	cases := []struct {
		text string
		want []domain.ResidualFinding
	}{
		{"Patient has [REDACTED].", nil},
		{"SSN 123-45-6789, DOB 04/12/1980", []domain.ResidualFinding{{Label: "DATEOFBIRTH", Count: 1}, {Label: "SOCIALNUM", Count: 1}}},
		{"MRN: 00123456", []domain.ResidualFinding{{Label: "MRN", Count: 1}}},
	}
	for _, tc := range cases {
		if got := ScanResidual(tc.text); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("ScanResidual(%q) = %+v, want %+v", tc.text, got, tc.want)
		}
	}
}
