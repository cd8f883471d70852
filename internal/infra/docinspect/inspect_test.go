package docinspect

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestInspectImages(t *testing.T) {
	cases := map[string][]byte{
		MediaTypePNG:  append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...),
		MediaTypeJPEG: append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 32)...),
	}
	for want, data := range cases {
		info, err := Inspector{MaxPages: 1}.Inspect(writeFile(t, "scan", data))
		if err != nil {
			t.Fatalf("%s: %v", want, err)
		}
		if info.MediaType != want || info.PageCount != 1 {
			t.Errorf("got %+v, want %s", info, want)
		}
	}
}

func TestInspectRejectsUnsupported(t *testing.T) {
	_, err := Inspector{}.Inspect(writeFile(t, "note.txt", []byte("plain clinical note")))
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("err = %v", err)
	}
}

func TestInspectRejectsBrokenPDF(t *testing.T) {
	_, err := Inspector{}.Inspect(writeFile(t, "note.pdf", []byte("%PDF-1.4\nthis is not a pdf body")))
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("err = %v", err)
	}
}

func TestInspectEmptyFile(t *testing.T) {
	_, err := Inspector{}.Inspect(writeFile(t, "empty.pdf", nil))
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("err = %v", err)
	}
}

func TestInspectMissingFile(t *testing.T) {
	_, err := Inspector{}.Inspect(filepath.Join(t.TempDir(), "missing.pdf"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}
