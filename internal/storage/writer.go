package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Harvey-AU/hostprobe/internal/dump"
)

// ErrAlreadyClaimed is returned when another worker, or an earlier run,
// already produced the head artifact for a host.
var ErrAlreadyClaimed = errors.New("head artifact already exists")

const (
	headDir = "head"
	bodyDir = "body"
)

// Writer lays out per-host artifacts under Root:
//
//	<root>/head/<host>.yml   resolution summary and headers
//	<root>/body/<host>.html  raw response body
type Writer struct {
	Root string
}

// NewWriter returns a Writer rooted at root.
func NewWriter(root string) *Writer {
	return &Writer{Root: root}
}

// HeadPath returns the head artifact path for host.
func (w *Writer) HeadPath(host string) string {
	return filepath.Join(w.Root, headDir, host+".yml")
}

// BodyPath returns the body artifact path for host.
func (w *Writer) BodyPath(host string) string {
	return filepath.Join(w.Root, bodyDir, host+".html")
}

// Exists reports whether the head artifact for host is present. Its presence
// marks the host as already done.
func (w *Writer) Exists(host string) bool {
	info, err := os.Stat(w.HeadPath(host))
	return err == nil && info.Mode().IsRegular()
}

// Claim creates the head artifact exclusively. The returned file must be
// closed by the caller; ErrAlreadyClaimed means another writer got there first.
func (w *Writer) Claim(host string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Join(w.Root, headDir), 0o755); err != nil {
		return nil, fmt.Errorf("create head directory: %w", err)
	}

	f, err := os.OpenFile(w.HeadPath(host), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, ErrAlreadyClaimed
	}
	if err != nil {
		return nil, fmt.Errorf("claim head artifact: %w", err)
	}
	return f, nil
}

// WriteResult writes each head document in order followed by the body file.
// If the body cannot be written the head is removed again so the host is
// retried on the next run.
func (w *Writer) WriteResult(host string, head []dump.Value, body []byte) error {
	f, err := w.Claim(host)
	if err != nil {
		return err
	}

	writeErr := func() error {
		dw := dump.NewWriter(f)
		for _, doc := range head {
			if err := dw.Write(doc); err != nil {
				return fmt.Errorf("write head artifact: %w", err)
			}
		}
		return f.Close()
	}()
	if writeErr == nil {
		writeErr = w.writeBody(host, body)
	} else {
		f.Close()
	}

	if writeErr != nil {
		_ = os.Remove(w.HeadPath(host))
		return writeErr
	}
	return nil
}

func (w *Writer) writeBody(host string, body []byte) error {
	if err := os.MkdirAll(filepath.Join(w.Root, bodyDir), 0o755); err != nil {
		return fmt.Errorf("create body directory: %w", err)
	}
	if err := os.WriteFile(w.BodyPath(host), body, 0o644); err != nil {
		return fmt.Errorf("write body artifact: %w", err)
	}
	return nil
}
