package insight

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/village/internal/model"
)

//go:embed suggestions.yaml
var suggestionsYAML []byte

// DefaultSuggestionLimit is the number of suggestions shown on the planner.
const DefaultSuggestionLimit = 3

type Suggestion struct {
	Category    string `json:"category" yaml:"-"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
}

// Catalog maps a goal category to its suggestions in display order.
type Catalog map[string][]Suggestion

// ParseCatalog decodes a YAML catalog keyed by category.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse suggestion catalog: %w", err)
	}
	for cat, list := range c {
		for i := range list {
			list[i].Category = cat
		}
	}
	return c, nil
}

var defaultCatalog = sync.OnceValues(func() (Catalog, error) {
	return ParseCatalog(suggestionsYAML)
})

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (Catalog, error) {
	return defaultCatalog()
}

// Suggest returns up to limit suggestions the household does not already
// have as goals. Categories with the fewest existing goals come first
// (ties alphabetical) and are visited round-robin, so the top picks span
// several categories.
func (c Catalog) Suggest(goals []model.Goal, limit int) []Suggestion {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	have := make(map[string]bool, len(goals))
	perCategory := map[string]int{}
	for _, g := range goals {
		have[strings.ToLower(strings.TrimSpace(g.Title))] = true
		perCategory[g.Category]++
	}

	cats := make([]string, 0, len(c))
	for cat := range c {
		cats = append(cats, cat)
	}
	sort.Slice(cats, func(i, j int) bool {
		ni, nj := perCategory[cats[i]], perCategory[cats[j]]
		if ni != nj {
			return ni < nj
		}
		return cats[i] < cats[j]
	})

	queues := make([][]Suggestion, len(cats))
	for i, cat := range cats {
		for _, s := range c[cat] {
			if !have[strings.ToLower(s.Title)] {
				queues[i] = append(queues[i], s)
			}
		}
	}

	out := []Suggestion{}
	for len(out) < limit {
		progressed := false
		for i := range queues {
			if len(queues[i]) == 0 {
				continue
			}
			out = append(out, queues[i][0])
			queues[i] = queues[i][1:]
			progressed = true
			if len(out) == limit {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}
