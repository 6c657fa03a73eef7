package hierarchy

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FindOrphans lists the .kicad_sch files under dir that no scope of h
// references. Backup and autosave copies KiCad leaves next to the project
// are ignored.
func FindOrphans(dir string, h *Hierarchy) ([]string, error) {
	matches, err := doublestar.FilepathGlob(filepath.Join(dir, "**", "*.kicad_sch"))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", dir, err)
	}

	used := map[string]bool{}
	for _, f := range h.sortedFiles() {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, err
		}
		used[abs] = true
	}

	var orphans []string
	for _, m := range matches {
		if ignored(m) {
			continue
		}
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, err
		}
		if !used[abs] {
			orphans = append(orphans, m)
		}
	}
	sort.Strings(orphans)
	return orphans, nil
}

func ignored(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "_autosave-") || strings.HasPrefix(base, ".kisync-") {
		return true
	}
	for _, dir := range strings.Split(filepath.ToSlash(filepath.Dir(path)), "/") {
		if strings.HasSuffix(dir, "-backups") {
			return true
		}
	}
	return false
}
