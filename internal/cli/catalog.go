package cli

import (
	"fmt"
	"sort"

	"github.com/eyespy-lab/stimlog/internal/config"
	"github.com/eyespy-lab/stimlog/internal/stimulus"
)

type catalogJSON struct {
	Total   int                `json:"total"`
	Classes []catalogClassJSON `json:"classes"`
	Entries []catalogEntryJSON `json:"entries,omitempty"`
}

type catalogClassJSON struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Dir   string `json:"dir"`
	Count int    `json:"count"`
}

type catalogEntryJSON struct {
	Path      string `json:"path"`
	Class     string `json:"class"`
	Condition string `json:"condition"`
}

// Execute implements the go-flags Commander interface for CatalogCommand.
func (c *CatalogCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if c.Preset != "" {
		if err := cfg.ApplyPreset(c.Preset); err != nil {
			return err
		}
	}
	return c.executeWithConfig(cfg)
}

// executeWithConfig builds and prints the catalog for cfg (for testing).
func (c *CatalogCommand) executeWithConfig(cfg *config.Config) error {
	specs := make([]stimulus.ClassSpec, len(cfg.Stimuli.Classes))
	for i, cls := range cfg.Stimuli.Classes {
		specs[i] = stimulus.ClassSpec{Name: cls.Name, Label: cls.Label, Dir: cls.Dir, Extensions: cls.Extensions}
	}

	cat, err := stimulus.BuildCatalog(specs)
	if err != nil {
		return fmt.Errorf("build stimulus catalog: %w", err)
	}
	counts := cat.CountByClass()

	out := catalogJSON{Total: cat.Len()}
	for _, cls := range cfg.Stimuli.Classes {
		out.Classes = append(out.Classes, catalogClassJSON{
			Name: cls.Name, Label: cls.Label, Dir: cls.Dir, Count: counts[cls.Name],
		})
	}
	if c.Entries {
		for _, s := range cat.Stimuli {
			out.Entries = append(out.Entries, catalogEntryJSON{Path: s.Path, Class: s.Class, Condition: s.Condition})
		}
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(out)
	}

	fmt.Printf("Stimulus Catalog (%s stimuli)\n", formatNumber(int64(out.Total)))
	fmt.Println()
	sort.SliceStable(out.Classes, func(i, j int) bool { return out.Classes[i].Label < out.Classes[j].Label })
	for _, cls := range out.Classes {
		fmt.Printf("  %-12s label %-4s %6s  %s\n", cls.Name, cls.Label, formatNumber(int64(cls.Count)), cls.Dir)
	}

	if c.Entries {
		fmt.Println()
		for _, e := range out.Entries {
			fmt.Printf("  %s  %-12s %s\n", e.Condition, e.Class, e.Path)
		}
	}
	return nil
}
