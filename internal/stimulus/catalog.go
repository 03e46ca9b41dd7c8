package stimulus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eyespy-lab/stimlog/internal/row"
)

// ErrEmptyCatalog is returned when no stimulus files were found.
var ErrEmptyCatalog = errors.New("no stimuli found")

// ClassSpec describes one stimulus class and where its files live.
type ClassSpec struct {
	Name       string   // human name, e.g. "real"
	Label      string   // condition label written to stimulus rows
	Dir        string   // directory scanned for files
	Extensions []string // accepted extensions, e.g. ".jpg"
}

// Stimulus is one presentable item with its class stored explicitly.
type Stimulus struct {
	Path      string
	Class     string
	Condition string
}

// Catalog is the full, ordered set of stimuli for a session.
type Catalog struct {
	Stimuli []Stimulus
}

// Len returns the number of stimuli.
func (c *Catalog) Len() int { return len(c.Stimuli) }

// CountByClass returns the number of stimuli per class name.
func (c *Catalog) CountByClass() map[string]int {
	counts := make(map[string]int)
	for _, s := range c.Stimuli {
		counts[s.Class]++
	}
	return counts
}

// BuildCatalog scans every class directory and labels each file with its
// class. Files are sorted per class so the catalog is reproducible.
func BuildCatalog(classes []ClassSpec) (*Catalog, error) {
	cat := &Catalog{}
	seen := make(map[string]string)

	for _, cls := range classes {
		if cls.Label == "" {
			return nil, fmt.Errorf("class %q: empty condition label", cls.Name)
		}

		entries, err := os.ReadDir(cls.Dir)
		if err != nil {
			return nil, fmt.Errorf("class %q: read %s: %w", cls.Name, cls.Dir, err)
		}

		var paths []string
		for _, e := range entries {
			if e.IsDir() || !hasExtension(e.Name(), cls.Extensions) {
				continue
			}
			paths = append(paths, filepath.Join(cls.Dir, e.Name()))
		}
		sort.Strings(paths)

		for _, p := range paths {
			if row.IsNumeric(p) {
				return nil, fmt.Errorf("class %q: stimulus path %q is numeric and would be indistinguishable from an idle row", cls.Name, p)
			}
			if other, ok := seen[p]; ok {
				return nil, fmt.Errorf("stimulus %s listed in classes %q and %q", p, other, cls.Name)
			}
			seen[p] = cls.Name
			cat.Stimuli = append(cat.Stimuli, Stimulus{Path: p, Class: cls.Name, Condition: cls.Label})
		}
	}

	if len(cat.Stimuli) == 0 {
		return nil, ErrEmptyCatalog
	}
	return cat, nil
}

func hasExtension(name string, exts []string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}
