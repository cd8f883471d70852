package deid

import "context"

// OCR port: extracts text from a document into a file under workDir and returns its path.
type OCR interface {
	RunOCR(ctx context.Context, filePath, workDir string) (string, error)
}

// FileStore port for the remote staging area.
type FileStore interface {
	Upload(ctx context.Context, localPath, remoteSubdir string) (string, error)
	Download(ctx context.Context, remotePath, localDest string) error
}

// Redactor port: redacts a staged remote file into outputRemoteDir.
type Redactor interface {
	Redact(ctx context.Context, stagedRemotePath, outputRemoteDir string) (RedactionResult, error)
}
