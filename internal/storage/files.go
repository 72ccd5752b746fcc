package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileStore releases attachment files once nothing references them.
type FileStore interface {
	Remove(ctx context.Context, ref string) error
}

// DiskFiles keeps uploads under Root. A reference is a path relative to it.
type DiskFiles struct {
	Root string
}

func (d DiskFiles) Remove(_ context.Context, ref string) error {
	path, err := d.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "remove attachment file")
	}
	return nil
}

// resolve keeps references from escaping Root.
func (d DiskFiles) resolve(ref string) (string, error) {
	if ref == "" || strings.Contains(ref, "\x00") {
		return "", errors.Errorf("invalid file reference %q", ref)
	}
	clean := filepath.Clean("/" + filepath.FromSlash(ref))
	return filepath.Join(d.Root, clean), nil
}

// NopFiles is used when attachments live elsewhere.
type NopFiles struct{}

func (NopFiles) Remove(context.Context, string) error { return nil }

// releaseFiles removes files of purged rows. Failures are logged: the rows are
// already gone and a leftover file only costs disk space.
func (s *Service) releaseFiles(ctx context.Context, files []string) {
	for _, f := range files {
		if err := s.Files.Remove(ctx, f); err != nil {
			s.log.Warn().Err(err).Str("file", f).Msg("failed to release attachment file")
		}
	}
}
