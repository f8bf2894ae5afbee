package backup

import (
	"errors"
	"testing"

	"craftfleet/internal/fleet"
)

const snapshotsJSON = `[
  {"time":"2024-03-02T10:00:00Z","tree":"t2","paths":["/data"],"hostname":"YC-survival-env2","username":"root","tags":["env2","survival"],"id":"bbb","short_id":"bb"},
  {"time":"2024-03-01T10:00:00Z","parent":"p","tree":"t1","paths":["/data"],"hostname":"YC-survival-env2","tags":["env2","survival","adhoc"],"id":"aaa","short_id":"aa","program_version":"restic 0.16.4"},
  {"time":"2024-03-03T10:00:00Z","tree":"t3","paths":["/data"],"hostname":"YC-lobby-env2","tags":["env2","lobby","adhoc"],"id":"ccc","short_id":"cc"}
]`

func TestParseSnapshots(t *testing.T) {
	snaps, err := ParseSnapshots([]byte(snapshotsJSON))
	if err != nil {
		t.Fatalf("ParseSnapshots() error = %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("len = %d, want 3", len(snaps))
	}
	if snaps[1].Parent != "p" || snaps[1].ProgramVersion != "restic 0.16.4" || snaps[1].ShortID != "aa" {
		t.Fatalf("snapshot[1] = %+v", snaps[1])
	}
}

func TestParseSnapshotsMissingRequiredField(t *testing.T) {
	raw := `[{"time":"2024-03-02T10:00:00Z","paths":["/data"],"hostname":"h","tags":["env2"],"id":"x","short_id":"x"}]`
	_, err := ParseSnapshots([]byte(raw))
	var serr *fleet.SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want SchemaError", err)
	}
	if serr.Field != "snapshots[0].tree" {
		t.Fatalf("Field = %q", serr.Field)
	}
	if serr.Raw != raw {
		t.Fatal("SchemaError does not carry the raw output")
	}
}

func TestParseSnapshotsMalformed(t *testing.T) {
	_, err := ParseSnapshots([]byte("Fatal: wrong password"))
	var serr *fleet.SchemaError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want SchemaError", err)
	}
}

func TestFilterSnapshotsRequiresEveryTag(t *testing.T) {
	snaps, err := ParseSnapshots([]byte(snapshotsJSON))
	if err != nil {
		t.Fatal(err)
	}

	got := FilterSnapshots(snaps, []string{"env2", "adhoc"})
	if len(got) != 2 || got[0].ID != "aaa" || got[1].ID != "ccc" {
		t.Fatalf("Filter(env2, adhoc) = %+v", got)
	}

	got = FilterSnapshots(snaps, []string{"env2", "survival"})
	if len(got) != 2 || got[0].ID != "aaa" || got[1].ID != "bbb" {
		t.Fatalf("Filter(env2, survival) should be sorted by time: %+v", got)
	}

	if got := FilterSnapshots(snaps, []string{"lobby", "survival"}); len(got) != 0 {
		t.Fatalf("Filter(lobby, survival) = %+v, want none", got)
	}
}

func TestValidateTags(t *testing.T) {
	if err := ValidateTags([]string{"survival", "adhoc"}); err != nil {
		t.Fatalf("ValidateTags() error = %v", err)
	}
	for _, bad := range [][]string{{""}, {"a b"}, {"a,b"}, {"ok", "tab\there"}} {
		var verr *fleet.ValidationError
		if err := ValidateTags(bad); !errors.As(err, &verr) {
			t.Fatalf("ValidateTags(%q) error = %v, want ValidationError", bad, err)
		}
	}
}
