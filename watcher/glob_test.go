package watcher

import "testing"

func TestMatchGlob(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "dir/main.go", false},
		{"**/*.go", "dir/main.go", true},
		{"**/*.go", "a/b/c/main.go", true},
		{"**/*.go", "main.go", true},
		{"node_modules/**", "node_modules/pkg/index.js", true},
		{"node_modules/**", "node_modules", true},
		{"src/?.go", "src/a.go", true},
		{"src/?.go", "src/ab.go", false},
		{"*.txt", "notes.md", false},
	}

	for _, c := range cases {
		got := MatchGlob(c.pattern, c.path)
		if got != c.want {
			t.Errorf("MatchGlob(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}
