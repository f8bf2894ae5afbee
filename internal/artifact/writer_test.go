package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestWriteGeneratedBannerAndMode(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(afero.NewOsFs())
	path := filepath.Join(dir, "gen", "docker-compose-env2.yml")

	if err := w.WriteGenerated(path, []byte("services: {}\n")); err != nil {
		t.Fatalf("WriteGenerated() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), Banner) {
		t.Fatalf("missing banner:\n%s", data)
	}
	if !strings.HasSuffix(string(data), "services: {}\n") {
		t.Fatalf("body lost:\n%s", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != FileMode {
		t.Fatalf("file mode = %o, want %o", info.Mode().Perm(), FileMode)
	}
	dirInfo, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if dirInfo.Mode().Perm() != DirMode {
		t.Fatalf("dir mode = %o, want %o", dirInfo.Mode().Perm(), DirMode)
	}
}

func TestWriteFileResetsExistingMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.env")
	if err := os.WriteFile(path, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}
	w := NewWriter(afero.NewOsFs())
	if err := w.WriteFile(path, []byte("new")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != FileMode {
		t.Fatalf("mode = %o, want %o", info.Mode().Perm(), FileMode)
	}
}

func TestWriteFileReplacesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.properties")
	if err := os.WriteFile(path, []byte("level-name=old\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w := NewWriter(afero.NewOsFs())
	if err := w.WriteFile(path, []byte("level-name=lobby\n")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "level-name=lobby\n" {
		t.Fatalf("content = %q, %v", data, err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Mode().Perm() != FileMode {
		t.Fatalf("mode = %v, %v, want %o", info, err, FileMode)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "server.properties" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("directory holds %v, want only server.properties", names)
	}
}

func TestWriteFileFailureKeepsOldContent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/gen/a.env", []byte("OLD=1\n"), 0o664); err != nil {
		t.Fatal(err)
	}
	w := NewWriter(afero.NewReadOnlyFs(fsys))
	if err := w.WriteFile("/gen/a.env", []byte("NEW=1\n")); err == nil {
		t.Fatal("WriteFile() on read-only fs succeeded")
	}
	data, err := afero.ReadFile(fsys, "/gen/a.env")
	if err != nil || string(data) != "OLD=1\n" {
		t.Fatalf("content = %q, %v", data, err)
	}
}

func TestWriteGeneratedIfAbsent(t *testing.T) {
	fsys := afero.NewMemMapFs()
	w := NewWriter(fsys)

	wrote, err := w.WriteGeneratedIfAbsent("/a/server.properties", []byte("level-name=lobby\n"))
	if err != nil || !wrote {
		t.Fatalf("first write = %v, %v", wrote, err)
	}
	if err := afero.WriteFile(fsys, "/a/server.properties", []byte("operator edit\n"), 0o664); err != nil {
		t.Fatal(err)
	}
	wrote, err = w.WriteGeneratedIfAbsent("/a/server.properties", []byte("level-name=lobby\n"))
	if err != nil || wrote {
		t.Fatalf("second write = %v, %v", wrote, err)
	}
	data, _ := afero.ReadFile(fsys, "/a/server.properties")
	if string(data) != "operator edit\n" {
		t.Fatalf("existing file clobbered: %q", data)
	}
}

func TestRemoveMissingIsNotError(t *testing.T) {
	w := NewWriter(afero.NewMemMapFs())
	if err := w.Remove("/nope/missing"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
}

func TestCopyTree(t *testing.T) {
	fsys := afero.NewMemMapFs()
	_ = afero.WriteFile(fsys, "/src/paper-global.yml", []byte("a: 1\n"), 0o600)
	_ = afero.WriteFile(fsys, "/src/nested/bukkit.yml", []byte("b: 2\n"), 0o600)
	w := NewWriter(fsys)

	if err := w.CopyTree("/src", "/dst"); err != nil {
		t.Fatalf("CopyTree() error = %v", err)
	}
	data, err := afero.ReadFile(fsys, "/dst/nested/bukkit.yml")
	if err != nil || string(data) != "b: 2\n" {
		t.Fatalf("copied file = %q, %v", data, err)
	}
	info, _ := fsys.Stat("/dst/paper-global.yml")
	if info.Mode().Perm() != FileMode {
		t.Fatalf("copied mode = %o", info.Mode().Perm())
	}
}

func TestLayout(t *testing.T) {
	l := Layout{RepoRoot: "/repo"}
	if got := l.ComposeFile("env2"); got != "/repo/gen/docker-compose-env2.yml" {
		t.Fatalf("ComposeFile = %q", got)
	}
	if got := l.EnvFile("env2"); got != "/repo/gen/env2.env" {
		t.Fatalf("EnvFile = %q", got)
	}
	d := Data("/srv/mc", "env2")
	if got := d.ServerProperties("lobby"); got != "/srv/mc/env/env2/lobby/configs/server/server.properties" {
		t.Fatalf("ServerProperties = %q", got)
	}
	if got := d.PaperGlobal(); got != "/srv/mc/env/env2/defaultconfigs/paper-global.yml" {
		t.Fatalf("PaperGlobal = %q", got)
	}
	if len(d.Skeleton("lobby")) != 5 {
		t.Fatalf("Skeleton = %v", d.Skeleton("lobby"))
	}
}
