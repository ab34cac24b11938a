package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfigFileInPaths_PrefersYAMLThenYML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clawguard.yml"), []byte("dev_mode: true\n"), 0o644); err != nil {
		t.Fatalf("write clawguard.yml: %v", err)
	}

	got := findConfigFileInPaths([]string{dir})
	want := filepath.Join(dir, "clawguard.yml")
	if got != want {
		t.Errorf("findConfigFileInPaths() = %q, want %q", got, want)
	}

	if err := os.WriteFile(filepath.Join(dir, "clawguard.yaml"), []byte("dev_mode: true\n"), 0o644); err != nil {
		t.Fatalf("write clawguard.yaml: %v", err)
	}
	got = findConfigFileInPaths([]string{dir})
	want = filepath.Join(dir, "clawguard.yaml")
	if got != want {
		t.Errorf("findConfigFileInPaths() with both present = %q, want %q (.yaml checked first)", got, want)
	}
}

func TestFindConfigFileInPaths_NoMatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if got := findConfigFileInPaths([]string{dir}); got != "" {
		t.Errorf("findConfigFileInPaths() = %q, want empty string", got)
	}
}

func TestFindConfigFileInPaths_SkipsMissingDirFirst(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "clawguard.yaml"), []byte("dev_mode: true\n"), 0o644); err != nil {
		t.Fatalf("write clawguard.yaml: %v", err)
	}

	got := findConfigFileInPaths([]string{filepath.Join(dir, "does-not-exist"), dir})
	want := filepath.Join(dir, "clawguard.yaml")
	if got != want {
		t.Errorf("findConfigFileInPaths() = %q, want %q", got, want)
	}
}
