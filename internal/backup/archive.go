package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"craftfleet/internal/artifact"
	"craftfleet/internal/fleet"
)

// ArchiveSuffix is appended to a live directory to name its archive folder.
const ArchiveSuffix = "_archive"

// Archive moves dir into <dir><suffix>/<base>-<unix-epoch>, first evicting
// the oldest copies so that at most max remain afterwards. It returns the
// archived path, or "" when dir does not exist.
func Archive(w *artifact.Writer, dir, suffix string, max int, clock fleet.Clock) (string, error) {
	if max < 1 {
		return "", &fleet.ValidationError{Field: "max_archives", Message: "must be at least 1"}
	}
	dir = filepath.Clean(dir)
	exists, err := w.Exists(dir)
	if err != nil {
		return "", err
	}
	if !exists {
		slog.Warn("nothing to archive, live directory absent", "component", "backup", "dir", dir)
		return "", nil
	}

	archiveDir := dir + suffix
	if err := w.MkdirAll(archiveDir); err != nil {
		return "", err
	}
	base := filepath.Base(dir)
	existing, err := archives(w.Fs(), archiveDir, base)
	if err != nil {
		return "", err
	}
	if n := len(existing); n >= max {
		for _, name := range existing[:n-max+1] {
			if err := w.Remove(filepath.Join(archiveDir, name)); err != nil {
				return "", fmt.Errorf("evict archive: %w", err)
			}
			slog.Info("evicted archive", "component", "backup", "archive", name)
		}
	}

	dst := filepath.Join(archiveDir, base+"-"+strconv.FormatInt(clock.Now().Unix(), 10))
	if err := w.Fs().Rename(dir, dst); err != nil {
		return "", fmt.Errorf("archive %s: %w", dir, err)
	}
	slog.Info("archived directory", "component", "backup", "from", dir, "to", dst)
	return dst, nil
}

// RecoverLatestArchive renames the newest archived copy of dir back into
// place. A live directory left behind by a failed restore is moved aside
// first: removed when empty, otherwise kept as <base>-failed-<unix-epoch>
// next to the archives. It returns the recovered archive path.
func RecoverLatestArchive(w *artifact.Writer, dir, suffix string, clock fleet.Clock) (string, error) {
	dir = filepath.Clean(dir)
	archiveDir := dir + suffix
	base := filepath.Base(dir)
	existing, err := archives(w.Fs(), archiveDir, base)
	if err != nil {
		return "", err
	}
	if len(existing) == 0 {
		return "", &fleet.NotFoundError{Kind: "archive", Name: archiveDir}
	}

	if err := moveAside(w, dir, filepath.Join(archiveDir, base+failedInfix+strconv.FormatInt(clock.Now().Unix(), 10))); err != nil {
		return "", err
	}

	src := filepath.Join(archiveDir, existing[len(existing)-1])
	if err := w.Fs().Rename(src, dir); err != nil {
		return "", fmt.Errorf("recover %s: %w", src, err)
	}
	slog.Info("recovered archive", "component", "backup", "from", src, "to", dir)
	return src, nil
}

const failedInfix = "-failed-"

func moveAside(w *artifact.Writer, dir, failed string) error {
	exists, err := w.Exists(dir)
	if err != nil || !exists {
		return err
	}
	empty, err := afero.IsEmpty(w.Fs(), dir)
	if err != nil {
		return fmt.Errorf("inspect %s: %w", dir, err)
	}
	if empty {
		return w.Remove(dir)
	}
	if err := w.Fs().Rename(dir, failed); err != nil {
		return fmt.Errorf("move aside %s: %w", dir, err)
	}
	slog.Warn("moved partial restore output aside", "component", "backup", "from", dir, "to", failed)
	return nil
}

// archives lists archived copies of base, oldest first. Only
// <base>-<unix-epoch> entries count; copies moved aside by a recovery do not.
// Epochs share a width until 2286, so ordering by name is chronological.
func archives(fsys afero.Fs, archiveDir, base string) ([]string, error) {
	entries, err := afero.ReadDir(fsys, archiveDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list archives: %w", err)
	}
	var names []string
	for _, e := range entries {
		epoch, ok := strings.CutPrefix(e.Name(), base+"-")
		if !ok || epoch == "" || strings.TrimLeft(epoch, "0123456789") != "" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
