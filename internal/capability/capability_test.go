package capability

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryBuiltins(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	c, err := r.Lookup("")
	if err != nil {
		t.Fatalf("default lookup: %v", err)
	}
	if c.Name != DefaultProfile {
		t.Fatalf("default profile: got %q want %q", c.Name, DefaultProfile)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("builtin invalid: %v", err)
	}
	if _, err := r.Lookup("nope"); !errors.Is(err, ErrUnknownProfile) {
		t.Fatalf("expected ErrUnknownProfile, got %v", err)
	}
	if got := len(r.All()); got != 3 {
		t.Fatalf("profile count: got %d want 3", got)
	}
}

func TestLoadFileShadowsBuiltin(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	doc := `profiles:
  - name: cloud
    scratchpad_bytes: 131072
    core_num: 24
    atomic_add: false
  - name: tiny
    scratchpad_bytes: 4096
    core_num: 1
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write profiles: %v", err)
	}

	r := NewRegistry()
	if err := r.LoadFile(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	c, err := r.Lookup("cloud")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if c.CoreNum != 24 || c.ScratchpadBytes != 131072 || c.AtomicAdd {
		t.Fatalf("shadowed profile not applied: %+v", c)
	}
	if c.BlockBytes != DefaultBlockBytes || c.Generation != 1 {
		t.Fatalf("defaults not filled: %+v", c)
	}
	if _, err := r.Lookup("tiny"); err != nil {
		t.Fatalf("lookup tiny: %v", err)
	}
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("profiles:\n  - name: zero\n    scratchpad_bytes: 1024\n    core_num: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := NewRegistry().LoadFile(path); err == nil {
		t.Fatal("expected error for core_num 0")
	}
}
