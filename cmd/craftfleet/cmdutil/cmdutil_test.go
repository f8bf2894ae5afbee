package cmdutil

import (
	"fmt"
	"slices"
	"strings"
	"testing"

	"craftfleet/internal/fleet"
)

func TestSplitList(t *testing.T) {
	got := SplitList(" lobby, ,survival,")
	if !slices.Equal(got, []string{"lobby", "survival"}) {
		t.Fatalf("SplitList() = %v", got)
	}
	if SplitList("") != nil {
		t.Fatal("SplitList(\"\") should be nil")
	}
}

func TestDescribe(t *testing.T) {
	inProgress := fmt.Errorf("backup env2/lobby: %w",
		&fleet.InProgressError{Kind: fleet.OperationBackup, Container: "YC-lobby-env2_backup_adhoc"})
	if got := Describe(inProgress); !strings.HasSuffix(got, "(retry once it finishes)") {
		t.Fatalf("Describe(in progress) = %q", got)
	}

	tool := &fleet.ToolError{Tool: "restic", ExitCode: 1, Output: "repository locked\n"}
	if got := Describe(tool); got != "restic exited with code 1:\nrepository locked" {
		t.Fatalf("Describe(tool) = %q", got)
	}

	if got := Describe(&fleet.ProtectedError{Env: "env1"}); !strings.Contains(got, "enable_env_protection") {
		t.Fatalf("Describe(protected) = %q", got)
	}
}
