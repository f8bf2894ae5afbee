package ui

import (
	"strings"
	"testing"
)

func TestEnvTruthy(t *testing.T) {
	testCases := []struct {
		value string
		want  bool
	}{
		{value: "1", want: true},
		{value: "TRUE", want: true},
		{value: " yes ", want: true},
		{value: "on", want: true},
		{value: "0", want: false},
		{value: "off", want: false},
		{value: "", want: false},
	}
	for _, tc := range testCases {
		t.Setenv("CRAFTFLEET_TEST_TRUTHY", tc.value)
		if got := envTruthy("CRAFTFLEET_TEST_TRUTHY"); got != tc.want {
			t.Fatalf("envTruthy(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestNoInteractionDisablesColor(t *testing.T) {
	ConfigureInteraction(true)
	if IsInteractive() {
		t.Fatal("IsInteractive() = true after ConfigureInteraction(true)")
	}
	if got := Success("ok"); got != "ok" {
		t.Fatalf("Success() = %q, want plain text", got)
	}
}

func TestKeyValuesAligns(t *testing.T) {
	ConfigureInteraction(true)
	out := KeyValues("  ", KV("Name", "env1"), KV("Proxy port", "25601"))
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("KeyValues() = %q", out)
	}
	if strings.Index(lines[0], "env1") != strings.Index(lines[1], "25601") {
		t.Fatalf("values not aligned:\n%s", out)
	}
}

func TestTableContainsCells(t *testing.T) {
	ConfigureInteraction(true)
	out := Table([]string{"Name", "State"}, [][]string{{"YC-lobby-env1", "running"}})
	for _, want := range []string{"Name", "State", "YC-lobby-env1", "running"} {
		if !strings.Contains(out, want) {
			t.Fatalf("Table() missing %q:\n%s", want, out)
		}
	}
}

func TestOutputPlaceholder(t *testing.T) {
	ConfigureInteraction(true)
	if got := Output(" \n"); got != "(no output)" {
		t.Fatalf("Output() = %q", got)
	}
	if got := Output("done\n"); got != "done" {
		t.Fatalf("Output() = %q", got)
	}
}
