package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the chandra home directory.
	DefaultDirName = ".chandra"

	// UploadsDirName is the subdirectory for per-request upload scratch space.
	UploadsDirName = "uploads"

	// OutputDirName is the subdirectory `chandra ocr` writes results to.
	OutputDirName = "output"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Dir represents the chandra home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.chandra).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// UploadsPath returns the parent directory for upload temp dirs.
func (d *Dir) UploadsPath() string {
	return filepath.Join(d.path, UploadsDirName)
}

// OutputPath returns the directory for saved OCR results.
func (d *Dir) OutputPath() string {
	return filepath.Join(d.path, OutputDirName)
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{d.UploadsPath(), d.OutputPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}

// UploadTempDir creates a fresh directory for one request's upload.
// The caller removes it.
func (d *Dir) UploadTempDir() (string, error) {
	if err := os.MkdirAll(d.UploadsPath(), 0o755); err != nil {
		return "", fmt.Errorf("failed to create uploads directory: %w", err)
	}
	return os.MkdirTemp(d.UploadsPath(), "upload-*")
}

// ResultDir returns the output directory for a processed file, named after
// its base name without extension.
func (d *Dir) ResultDir(sourcePath string) string {
	base := filepath.Base(sourcePath)
	return filepath.Join(d.OutputPath(), base[:len(base)-len(filepath.Ext(base))])
}
