// Package artifact writes generated files. Every generated artifact gets the
// same banner and permission bits, and parent directories are created on
// demand.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	FileMode os.FileMode = 0o664
	DirMode  os.FileMode = 0o775
)

// Banner prefixes every generated artifact. '#' starts a comment in every
// format written here (YAML, TOML, dotenv, properties).
const Banner = "#\n" +
	"# THIS FILE IS AUTOMATICALLY GENERATED.\n" +
	"# DO NOT EDIT: CHANGES WILL BE OVERWRITTEN ON REGENERATION.\n" +
	"#\n\n"

// Writer is the only way generators touch the filesystem.
type Writer struct {
	fs afero.Fs
}

func NewWriter(fsys afero.Fs) *Writer {
	return &Writer{fs: fsys}
}

// Fs exposes the underlying filesystem for reads.
func (w *Writer) Fs() afero.Fs { return w.fs }

// WriteGenerated replaces path with the banner followed by body.
func (w *Writer) WriteGenerated(path string, body []byte) error {
	data := make([]byte, 0, len(Banner)+len(body))
	data = append(data, Banner...)
	data = append(data, body...)
	return w.WriteFile(path, data)
}

// WriteFile replaces path with data without a banner. The data goes to a
// temporary file in the same directory that is then renamed over path, so
// readers see either the old content or the new, never a partial file.
func (w *Writer) WriteFile(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := w.MkdirAll(dir); err != nil {
		return err
	}
	tmp, err := afero.TempFile(w.fs, dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			_ = w.fs.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	// TempFile creates 0600 files regardless of FileMode.
	if err := w.fs.Chmod(tmp.Name(), FileMode); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := w.fs.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// WriteGeneratedIfAbsent writes a bannered file only when path does not
// exist yet. It reports whether the file was written.
func (w *Writer) WriteGeneratedIfAbsent(path string, body []byte) (bool, error) {
	exists, err := w.Exists(path)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := w.WriteGenerated(path, body); err != nil {
		return false, err
	}
	return true, nil
}

// MkdirAll creates path and any missing parents. Every directory it creates
// gets DirMode regardless of umask.
func (w *Writer) MkdirAll(path string) error {
	var missing []string
	for p := filepath.Clean(path); ; {
		ok, err := w.Exists(p)
		if err != nil {
			return err
		}
		if ok {
			break
		}
		missing = append(missing, p)
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	if len(missing) == 0 {
		return nil
	}

	if err := w.fs.MkdirAll(path, DirMode); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	for _, p := range missing {
		if err := w.fs.Chmod(p, DirMode); err != nil {
			return fmt.Errorf("chmod %s: %w", p, err)
		}
	}
	return nil
}

// Exists reports whether path exists.
func (w *Writer) Exists(path string) (bool, error) {
	ok, err := afero.Exists(w.fs, path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

// Remove deletes path recursively. A missing path is not an error.
func (w *Writer) Remove(path string) error {
	if err := w.fs.RemoveAll(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// CopyTree copies src into dst, which must not exist. Copied files and
// directories get the generated-artifact modes.
func (w *Writer) CopyTree(src, dst string) error {
	return afero.Walk(w.fs, src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return w.MkdirAll(target)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		data, err := afero.ReadFile(w.fs, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		return w.WriteFile(target, data)
	})
}
