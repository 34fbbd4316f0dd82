package tools

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"imagent/pkg/utils"
)

// stagedFile is a temp copy of the image being edited. Release closes and
// removes it exactly once.
type stagedFile struct {
	f    *os.File
	Path string
	Mime string

	once sync.Once
	err  error
}

// stageImage writes data into a fresh imagent-edit-*<ext> file under dir.
// An empty dir means the OS temp dir.
func stageImage(dir string, data []byte) (*stagedFile, error) {
	mime, ext := utils.DetectMimeAndExt(data)
	f, err := os.CreateTemp(dir, "imagent-edit-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create staging file: %w", err)
	}
	s := &stagedFile{f: f, Path: f.Name(), Mime: mime}

	if _, err := f.Write(data); err != nil {
		s.Release()
		return nil, fmt.Errorf("write staging file: %w", err)
	}
	return s, nil
}

func (s *stagedFile) Release() error {
	s.once.Do(func() {
		closeErr := s.f.Close()
		rmErr := os.Remove(s.Path)
		if errors.Is(rmErr, os.ErrNotExist) {
			rmErr = nil
		}
		s.err = errors.Join(closeErr, rmErr)
		if s.err != nil {
			slog.Warn("Failed to release staging file", "path", s.Path, "error", s.err)
		}
	})
	return s.err
}
