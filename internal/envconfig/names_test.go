package envconfig

import "testing"

func TestParseName(t *testing.T) {
	id, err := ParseName("env12")
	if err != nil || id != 12 {
		t.Fatalf("ParseName(env12) = %d, %v", id, err)
	}
	for _, bad := range []string{"env0", "env", "prod", "env01", "env-1", "xenv1"} {
		if _, err := ParseName(bad); err == nil {
			t.Fatalf("ParseName(%q) expected error", bad)
		}
	}
	if NameFor(7) != "env7" {
		t.Fatalf("NameFor(7) = %q", NameFor(7))
	}
}

func TestNextID(t *testing.T) {
	cases := []struct {
		existing []int
		want     int
	}{
		{nil, 1},
		{[]int{1, 2, 3}, 4},
		{[]int{1, 3}, 2},
		{[]int{3, 1, 2, 5}, 4},
		{[]int{2, 3}, 1},
		{[]int{1, 1, 2}, 3},
		{[]int{1, 2, 5}, 3},
	}
	for _, tc := range cases {
		if got := NextID(tc.existing); got != tc.want {
			t.Fatalf("NextID(%v) = %d, want %d", tc.existing, got, tc.want)
		}
	}
}

func TestReservedWorldGroups(t *testing.T) {
	for _, name := range []string{"enabled_groups", "defaultconfigs", "velocity", "certs", "archive", "gen", "env"} {
		if !IsReservedWorldGroup(name) {
			t.Fatalf("%q should be reserved", name)
		}
	}
	if IsReservedWorldGroup("survival") {
		t.Fatal("survival should not be reserved")
	}
}

func TestParseFlavor(t *testing.T) {
	f, err := ParseFlavor("forge")
	if err != nil || f != FlavorForge || !f.ModBased() || f.PluginBased() {
		t.Fatalf("ParseFlavor(forge) = %q, %v", f, err)
	}
	if _, err := ParseFlavor("vanilla"); err == nil {
		t.Fatal("ParseFlavor(vanilla) expected error")
	}
}
