// Package fs implements the filesystem fingerprint engine.
package fs

import (
	"os"
	"path/filepath"
	"strings"
)

// Ignore file names checked in the build context, in precedence order.
var ignoreFiles = []string{".memoignore", ".gitignore"}

// rule is one parsed ignore pattern. Patterns are evaluated in file order
// and the last matching rule wins, so a later "!pattern" re-includes paths
// a broader earlier pattern excluded.
type rule struct {
	pattern string
	negate  bool
}

// Rules holds an ordered list of ignore patterns.
type Rules struct {
	rules []rule
}

// EmptyRules returns rules that ignore nothing.
func EmptyRules() *Rules {
	return &Rules{}
}

// LoadRules reads ignore rules from the build context directory. A
// .memoignore takes precedence over a .gitignore; neither existing yields
// empty rules.
func LoadRules(dir string) *Rules {
	for _, name := range ignoreFiles {
		data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // dir is the user's build context
		if err == nil {
			return ParseRules(string(data))
		}
	}
	return EmptyRules()
}

// ParseRules parses ignore patterns from file content. Blank lines and #
// comments are dropped; invalid glob patterns are skipped.
func ParseRules(content string) *Rules {
	r := &Rules{}
	for line := range strings.Lines(content) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		negate := false
		if strings.HasPrefix(line, "!") {
			negate = true
			line = strings.TrimPrefix(line, "!")
		}
		if _, err := filepath.Match(line, "probe"); err != nil {
			continue
		}
		r.rules = append(r.rules, rule{pattern: line, negate: negate})
	}
	return r
}

// Ignored reports whether the root-relative path is excluded. A pattern
// matches the path itself or any of its ancestors, so ignoring a directory
// ignores its whole subtree.
func (r *Rules) Ignored(rel string) bool {
	if r == nil || len(r.rules) == 0 {
		return false
	}

	ignored := false
	for _, ru := range r.rules {
		if matchesAncestor(ru.pattern, rel) {
			ignored = !ru.negate
		}
	}
	return ignored
}

// matchesAncestor checks the pattern against the path and each ancestor.
func matchesAncestor(pattern, rel string) bool {
	for p := filepath.ToSlash(rel); p != "" && p != "." && p != "/"; p = pathDir(p) {
		if ok, _ := filepath.Match(pattern, p); ok {
			return true
		}
		// A bare name pattern like "node_modules" should match at any depth.
		if ok, _ := filepath.Match(pattern, pathBase(p)); ok {
			return true
		}
	}
	return false
}

func pathDir(p string) string {
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

func pathBase(p string) string {
	i := strings.LastIndex(p, "/")
	return p[i+1:]
}
