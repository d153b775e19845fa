package fs_test

import (
	"os"
	"path/filepath"
	"testing"

	"go.trai.ch/memo/internal/adapters/fs"
)

func TestParseRules_ExactAndWildcard(t *testing.T) {
	rules := fs.ParseRules("node_modules\n*.log\n# a comment\n\n")

	cases := map[string]bool{
		"node_modules":          true,
		"node_modules/dep/a.js": true,
		"build.log":             true,
		"sub/build.log":         true,
		"main.go":               false,
		"src":                   false,
	}
	for path, want := range cases {
		if got := rules.Ignored(path); got != want {
			t.Errorf("Ignored(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestParseRules_LaterRuleOverrides(t *testing.T) {
	rules := fs.ParseRules("*.log\n!keep.log")

	if !rules.Ignored("drop.log") {
		t.Error("drop.log should be ignored")
	}
	if rules.Ignored("keep.log") {
		t.Error("keep.log should be re-included by the negation")
	}
}

func TestEmptyRules_IgnoresNothing(t *testing.T) {
	if fs.EmptyRules().Ignored("anything") {
		t.Error("empty rules must not ignore paths")
	}
}

func TestLoadRules_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "from_git\n")
	writeFile(t, dir, ".memoignore", "from_memo\n")

	rules := fs.LoadRules(dir)
	if !rules.Ignored("from_memo") {
		t.Error(".memoignore rules should be loaded")
	}
	if rules.Ignored("from_git") {
		t.Error(".gitignore must be shadowed by .memoignore")
	}
}

func TestLoadRules_FallsBackToGitignore(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "target\n")

	if !fs.LoadRules(dir).Ignored("target") {
		t.Error(".gitignore rules should be loaded when no .memoignore exists")
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s failed: %v", name, err)
	}
}
