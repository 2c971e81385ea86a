package adapters

import (
	"github.com/arcbound/turnloop/internal/models"
)

// tierReasoningEffort maps a symbolic routing tier to the reasoning effort
// requested of the resolved model.
var tierReasoningEffort = map[string]string{
	"fast":     "",
	"balanced": "",
	"coding":   "high",
}

// tierToCatalogTier maps the orchestrator's symbolic routing tiers onto the
// model catalog's quality/cost tiers.
var tierToCatalogTier = map[string]models.Tier{
	"fast":     models.TierFast,
	"balanced": models.TierStandard,
	"coding":   models.TierFlagship,
}

// ModelSelectionAdapter implements ports.ModelSelectionPort over the model
// catalog, picking the first non-deprecated model of the tier in Catalog.List
// order, that is, from the alphabetically first provider that has one.
type ModelSelectionAdapter struct {
	Catalog      *models.Catalog
	DefaultModel string
}

// NewModelSelectionAdapter builds an adapter over catalog, falling back to
// defaultModel when a tier has no catalog match.
func NewModelSelectionAdapter(catalog *models.Catalog, defaultModel string) *ModelSelectionAdapter {
	return &ModelSelectionAdapter{Catalog: catalog, DefaultModel: defaultModel}
}

// Resolve maps tier to a concrete model ID and reasoning effort.
func (a *ModelSelectionAdapter) Resolve(tier string) (string, string) {
	effort := tierReasoningEffort[tier]

	catalogTier, ok := tierToCatalogTier[tier]
	if !ok || a.Catalog == nil {
		return a.DefaultModel, effort
	}

	matches := a.Catalog.List(&models.Filter{Tiers: []models.Tier{catalogTier}})
	if len(matches) == 0 {
		return a.DefaultModel, effort
	}
	return matches[0].ID, effort
}
