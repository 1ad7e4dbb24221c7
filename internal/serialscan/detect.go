package serialscan

import (
	"path/filepath"
	"sort"
	"strings"
)

// Candidate is a serial device that may have a barcode reader attached.
type Candidate struct {
	Path  string
	Label string
}

var (
	defaultByIDGlob = "/dev/serial/by-id/*"
	defaultPatterns = []string{"/dev/ttyACM*", "/dev/ttyUSB*"}
)

// listCandidates returns stable by-id devices first, resolved to their tty
// node and labelled with the by-id name, then any remaining tty nodes.
func listCandidates(byIDGlob string, patterns []string) []Candidate {
	seen := map[string]bool{}
	out := make([]Candidate, 0, 8)
	add := func(path, label string) {
		path = strings.TrimSpace(path)
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		out = append(out, Candidate{Path: path, Label: label})
	}

	if byID, err := filepath.Glob(byIDGlob); err == nil {
		sort.Strings(byID)
		for _, path := range byID {
			label := filepath.Base(path)
			target, err := filepath.EvalSymlinks(path)
			if err == nil {
				add(target, label)
				continue
			}
			add(path, label)
		}
	}

	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		sort.Strings(matches)
		for _, path := range matches {
			resolved, err := filepath.EvalSymlinks(path)
			if err != nil {
				resolved = path
			}
			add(resolved, "")
		}
	}

	return out
}
