package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// StreamPath is the path that selects the process stream instead of a file.
const StreamPath = "-"

// Factory hands out the filesystem that vault inputs, outputs and config
// files are read from and written to.
type Factory interface {
	// Production is the host filesystem.
	Production() afero.Fs
	// Memory is a private, empty filesystem.
	Memory() afero.Fs
}

// DefaultFactory is the Factory used when no filesystem is injected.
type DefaultFactory struct{}

func NewDefaultFactory() Factory {
	return &DefaultFactory{}
}

func (f *DefaultFactory) Production() afero.Fs {
	return afero.NewOsFs()
}

func (f *DefaultFactory) Memory() afero.Fs {
	return afero.NewMemMapFs()
}

// ReadSource reads the whole of path, or of stdin when path is StreamPath.
func ReadSource(fsys afero.Fs, path string, stdin io.Reader) ([]byte, error) {
	if path == StreamPath {
		if stdin == nil {
			return nil, fmt.Errorf("stdin is not available")
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// WriteDestination writes data to path atomically, or to stdout when path is
// StreamPath.
func WriteDestination(fsys afero.Fs, path string, data []byte, stdout io.Writer) error {
	if path == StreamPath {
		if stdout == nil {
			return fmt.Errorf("stdout is not available")
		}
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write stdout: %w", err)
		}
		return nil
	}
	return WriteFileAtomic(fsys, path, data, 0600)
}

// WriteFileAtomic writes data next to path and renames it into place.
// Creates directory structure if it doesn't exist.
func WriteFileAtomic(fsys afero.Fs, path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tempFile := path + ".tmp"
	if err := afero.WriteFile(fsys, tempFile, data, perm); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := fsys.Rename(tempFile, path); err != nil {
		// Clean up temp file on failure
		_ = fsys.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}
