package catalog

import (
	"sort"
	"strings"

	"github.com/jimdaga/food-journal/internal/models"
)

// Registry maps food group names to their persisted records.
// It is built once at startup and read concurrently afterwards.
type Registry struct {
	groups map[string]models.FoodGroup
}

// NewRegistry builds a registry from persisted food groups
func NewRegistry(groups []models.FoodGroup) *Registry {
	r := &Registry{groups: make(map[string]models.FoodGroup, len(groups))}
	for _, g := range groups {
		r.groups[strings.ToLower(g.Name)] = g
	}
	return r
}

// Lookup finds a food group by name, ignoring case and surrounding spaces
func (r *Registry) Lookup(name string) (models.FoodGroup, bool) {
	g, ok := r.groups[strings.ToLower(strings.TrimSpace(name))]
	return g, ok
}

// Names returns the catalog names sorted alphabetically
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.groups))
	for _, g := range r.groups {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of food groups
func (r *Registry) Count() int {
	return len(r.groups)
}
