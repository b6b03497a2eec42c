package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jimdaga/food-journal/internal/models"
)

// GroupStore is the persistence the catalog loader needs
type GroupStore interface {
	UpsertFoodGroup(ctx context.Context, group *models.FoodGroup) error
	ListFoodGroups(ctx context.Context) ([]models.FoodGroup, error)
}

// Init loads the catalog manifest, syncs every food group to the database
// by name and returns a registry of what is persisted.
//
// Groups present in the database but absent from the manifest are kept:
// existing servings may still reference them.
func Init(ctx context.Context, store GroupStore, manifestPath string) (*Registry, error) {
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return nil, err
	}

	for _, entry := range manifest.FoodGroups {
		group := models.FoodGroup{
			Name:        entry.Name,
			Description: entry.Description,
			Essential:   entry.Essential,
		}
		if err := store.UpsertFoodGroup(ctx, &group); err != nil {
			return nil, fmt.Errorf("failed to sync food group %s: %w", entry.Name, err)
		}
	}

	groups, err := store.ListFoodGroups(ctx)
	if err != nil {
		return nil, err
	}

	slog.Info("Food group catalog synced", "manifest_groups", len(manifest.FoodGroups), "persisted_groups", len(groups))
	return NewRegistry(groups), nil
}
