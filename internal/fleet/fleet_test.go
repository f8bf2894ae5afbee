package fleet

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestContainerNames(t *testing.T) {
	testCases := []struct {
		name string
		got  string
		want string
	}{
		{name: "server", got: ContainerName("env2", "survival"), want: "YC-survival-env2"},
		{name: "service", got: ServiceName("survival"), want: "mc_survival"},
		{name: "backup service", got: BackupServiceName("survival"), want: "mc_survival_backup"},
		{name: "sidecar", got: BackupSidecarName("env2", "survival"), want: "YC-survival-env2_backup"},
		{name: "adhoc", got: AdhocBackupName("env2", "survival"), want: "YC-survival-env2_backup_adhoc"},
		{name: "restore", got: RestoreName("env2", "survival"), want: "YC-survival-env2_restore"},
		{name: "volume", got: VolumeName("survival"), want: "mcdata_survival"},
		{name: "proxy key", got: ProxyServerKey("sky-block"), want: "sky_block"},
		{name: "label", got: LabelKey("net.craftfleet.", LabelEnv), want: "net.craftfleet.env"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Fatalf("got %q, want %q", tc.got, tc.want)
			}
		})
	}
}

func TestContainerNameTruncates(t *testing.T) {
	name := ContainerName("env1", strings.Repeat("w", 300))
	if len(name) != containerNameMaxLen {
		t.Fatalf("len = %d, want %d", len(name), containerNameMaxLen)
	}
	if ContainerName("env1", strings.Repeat("w", 300)) != name {
		t.Fatal("ContainerName is not deterministic")
	}
}

func TestGuardErrorsAreRetryable(t *testing.T) {
	errs := []error{
		&InProgressError{Kind: OperationBackup, Container: "YC-lobby-env1_backup_adhoc"},
		&RestoreTargetRunningError{Container: "YC-lobby-env1"},
	}
	for _, err := range errs {
		wrapped := fmt.Errorf("restore env1/lobby: %w", err)
		if !errors.Is(wrapped, ErrRetryLater) {
			t.Fatalf("errors.Is(%v, ErrRetryLater) = false", err)
		}
	}
	if errors.Is(&ProtectedError{Env: "env1"}, ErrRetryLater) {
		t.Fatal("ProtectedError must not be retryable")
	}
}

func TestToolErrorMessage(t *testing.T) {
	if got := (&ToolError{Tool: "restic", ExitCode: 3}).Error(); got != "restic exited with code 3" {
		t.Fatalf("Error() = %q", got)
	}
	got := (&ToolError{Tool: "restic", ExitCode: 1, Output: "locked\n"}).Error()
	if got != "restic exited with code 1: locked" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestSchemaErrorUnwraps(t *testing.T) {
	cause := errors.New("bad time")
	err := &SchemaError{Field: "snapshots[0].time", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatal("SchemaError does not unwrap its cause")
	}
	if !strings.Contains(err.Error(), "snapshots[0].time") {
		t.Fatalf("Error() = %q", err.Error())
	}
}

func TestCombinedOutput(t *testing.T) {
	testCases := []struct {
		res  CommandResult
		want string
	}{
		{res: CommandResult{Stdout: "out\n"}, want: "out"},
		{res: CommandResult{Stderr: "err\n"}, want: "err"},
		{res: CommandResult{Stdout: "out\n", Stderr: "err\n"}, want: "out\nerr"},
		{res: CommandResult{}, want: ""},
	}
	for _, tc := range testCases {
		if got := tc.res.Combined(); got != tc.want {
			t.Fatalf("Combined(%+v) = %q, want %q", tc.res, got, tc.want)
		}
	}
}
