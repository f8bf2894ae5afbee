package tree

import (
	"reflect"
	"testing"
)

func TestLookupAndGetters(t *testing.T) {
	doc := Tree{
		"general": map[string]any{
			"description":           "staging",
			"enable_env_protection": true,
		},
		"cluster-variables": map[string]any{
			"VELOCITY_PORT": int64(25570),
		},
		"world-groups": map[string]any{
			"enabled_groups": []any{"lobby", "survival"},
		},
	}

	if got := String(doc, "", "general", "description"); got != "staging" {
		t.Fatalf("String() = %q", got)
	}
	if got := String(doc, "fallback", "general", "missing"); got != "fallback" {
		t.Fatalf("String() default = %q", got)
	}
	if !Bool(doc, false, "general", "enable_env_protection") {
		t.Fatal("Bool() = false, want true")
	}
	if got := Int(doc, 0, "cluster-variables", "VELOCITY_PORT"); got != 25570 {
		t.Fatalf("Int() = %d", got)
	}
	if got := Int(doc, 7, "general", "description"); got != 7 {
		t.Fatalf("Int() on string = %d, want default", got)
	}
	want := []string{"lobby", "survival"}
	if got := Strings(doc, nil, "world-groups", "enabled_groups"); !reflect.DeepEqual(got, want) {
		t.Fatalf("Strings() = %v, want %v", got, want)
	}
	if _, ok := Lookup(doc, "general", "description", "deeper"); ok {
		t.Fatal("Lookup through scalar should fail")
	}
	if Map(doc, "general") == nil {
		t.Fatal("Map(general) = nil")
	}
}

func TestToIntAcceptsDecoderTypes(t *testing.T) {
	for _, v := range []any{int(3), int64(3), uint64(3), float64(3)} {
		n, ok := ToInt(v)
		if !ok || n != 3 {
			t.Fatalf("ToInt(%T) = %d, %v", v, n, ok)
		}
	}
	if _, ok := ToInt(3.5); ok {
		t.Fatal("ToInt(3.5) should fail")
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Tree{"a": map[string]any{"b": []any{"x"}}}
	cp := Clone(orig)
	cp["a"].(map[string]any)["b"].([]any)[0] = "y"
	if orig["a"].(map[string]any)["b"].([]any)[0] != "x" {
		t.Fatal("Clone shares nested storage with original")
	}
}

func TestInterpolateReplacesKeysAndStrings(t *testing.T) {
	in := Tree{
		"container_name": "YC-<<WORLDGROUP>>",
		"volumes":        []any{"mcdata_<<WORLDGROUP>>:/data"},
		"labels": map[string]any{
			"craftfleet.world.<<WORLDGROUP>>": "<<WORLDGROUP>>",
		},
		"mem": 4096,
		"tty": true,
	}

	out := InterpolateTree(in, "<<WORLDGROUP>>", "lobby")

	if Count(out, "<<WORLDGROUP>>") != 0 {
		t.Fatalf("token left in output: %v", out)
	}
	if out["container_name"] != "YC-lobby" {
		t.Fatalf("container_name = %v", out["container_name"])
	}
	labels := out["labels"].(map[string]any)
	if labels["craftfleet.world.lobby"] != "lobby" {
		t.Fatalf("labels = %v", labels)
	}
	if out["mem"] != 4096 || out["tty"] != true {
		t.Fatalf("non-string scalars changed: %v", out)
	}
	if Count(in, "<<WORLDGROUP>>") != 4 {
		t.Fatalf("input mutated: %v", in)
	}
}

func TestInterpolateIsStructurePreserving(t *testing.T) {
	in := Tree{"x": []any{map[string]any{"k": "v"}, int64(1)}}
	out := InterpolateTree(in, "zz", "yy")
	if !reflect.DeepEqual(in, out) {
		t.Fatalf("Interpolate without matches changed tree: %v", out)
	}
}

func TestMergeSections(t *testing.T) {
	base := Tree{
		"environment": map[string]any{"A": "1", "B": "2"},
		"volumes":     []any{"a:/a"},
		"image":       "paper:latest",
	}
	overrides := Tree{
		"environment": map[string]any{"B": "3", "C": "4"},
		"volumes":     []any{"b:/b"},
		"image":       "paper:1.21",
		"ports":       []any{"25565:25565"},
	}

	got, err := MergeSections(base, overrides)
	if err != nil {
		t.Fatalf("MergeSections() error = %v", err)
	}

	want := Tree{
		"environment": map[string]any{"A": "1", "B": "3", "C": "4"},
		"volumes":     []any{"a:/a", "b:/b"},
		"image":       "paper:1.21",
		"ports":       []any{"25565:25565"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("MergeSections() = %#v\nwant %#v", got, want)
	}
	if base["image"] != "paper:latest" || len(base["volumes"].([]any)) != 1 {
		t.Fatalf("base mutated: %v", base)
	}
	if len(base["environment"].(map[string]any)) != 2 {
		t.Fatalf("base environment mutated: %v", base["environment"])
	}
}

func TestMergeSectionsReplacesNestedTables(t *testing.T) {
	base := Tree{
		"deploy": map[string]any{
			"resources": map[string]any{"limits": map[string]any{"memory": "4G", "cpus": "2"}},
			"restart":   "always",
		},
	}
	overrides := Tree{
		"deploy": map[string]any{
			"resources": map[string]any{"limits": map[string]any{"memory": "8G"}},
		},
	}

	got, err := MergeSections(base, overrides)
	if err != nil {
		t.Fatalf("MergeSections() error = %v", err)
	}
	want := map[string]any{
		"resources": map[string]any{"limits": map[string]any{"memory": "8G"}},
		"restart":   "always",
	}
	if !reflect.DeepEqual(got["deploy"], want) {
		t.Fatalf("deploy = %#v\nwant %#v", got["deploy"], want)
	}
	limits := base["deploy"].(map[string]any)["resources"].(map[string]any)["limits"].(map[string]any)
	if len(limits) != 2 {
		t.Fatalf("base limits mutated: %v", limits)
	}
}

func TestMergeSectionsTypeMismatchOverrideWins(t *testing.T) {
	got, err := MergeSections(Tree{"environment": []any{"A=1"}}, Tree{"environment": map[string]any{"B": "2"}})
	if err != nil {
		t.Fatalf("MergeSections() error = %v", err)
	}
	if !reflect.DeepEqual(got["environment"], map[string]any{"B": "2"}) {
		t.Fatalf("environment = %v", got["environment"])
	}
}
