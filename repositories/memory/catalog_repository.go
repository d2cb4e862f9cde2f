// Package memory holds in-process repositories used for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/upb/llm-gateway/models"
	"github.com/upb/llm-gateway/repositories"
)

// CatalogFile is the on-disk layout of a YAML catalog
type CatalogFile struct {
	Models []*models.PublicModel `yaml:"models"`
}

// CatalogRepository serves public models from memory
type CatalogRepository struct {
	mu     sync.RWMutex
	byName map[string]*models.PublicModel
}

// NewCatalogRepository builds a repository from already decoded models.
// Missing IDs are derived from the public name, provider and provider model.
func NewCatalogRepository(list []*models.PublicModel) (*CatalogRepository, error) {
	if err := ValidateCatalog(list); err != nil {
		return nil, err
	}
	r := &CatalogRepository{byName: make(map[string]*models.PublicModel, len(list))}
	for _, m := range list {
		if m.ID == "" {
			m.ID = m.PublicName
		}
		for i := range m.Variants {
			v := &m.Variants[i]
			v.PublicModelID = m.ID
			if v.ID == "" {
				v.ID = fmt.Sprintf("%s/%s/%s", m.PublicName, v.Provider, v.ProviderModel)
			}
		}
		r.byName[m.PublicName] = m
	}
	return r, nil
}

// LoadCatalogFile reads a YAML catalog from path
func LoadCatalogFile(path string) (*CatalogRepository, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var file CatalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	repo, err := NewCatalogRepository(file.Models)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	return repo, nil
}

// ValidateCatalog checks structural rules of a catalog:
// unique public names, a provider on every variant and
// unique (provider, provider_model) pairs within a model.
func ValidateCatalog(list []*models.PublicModel) error {
	names := make(map[string]struct{}, len(list))
	for i, m := range list {
		if m == nil || m.PublicName == "" {
			return fmt.Errorf("model %d: public_name is required", i)
		}
		if _, dup := names[m.PublicName]; dup {
			return fmt.Errorf("model %q: duplicate public_name", m.PublicName)
		}
		names[m.PublicName] = struct{}{}

		pairs := make(map[string]struct{}, len(m.Variants))
		for j, v := range m.Variants {
			if v.Provider == "" {
				return fmt.Errorf("model %q variant %d: provider is required", m.PublicName, j)
			}
			key := v.Provider + "\x00" + v.ProviderModel
			if _, dup := pairs[key]; dup {
				return fmt.Errorf("model %q: duplicate variant %s/%s", m.PublicName, v.Provider, v.ProviderModel)
			}
			pairs[key] = struct{}{}
			if v.Price.UnitPrices.InputPer1K < 0 || v.Price.UnitPrices.OutputPer1K < 0 {
				return fmt.Errorf("model %q variant %s: unit prices must not be negative", m.PublicName, v.Provider)
			}
		}
	}
	return nil
}

// ListModels returns every model ordered by public name
func (r *CatalogRepository) ListModels(ctx context.Context) ([]*models.PublicModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*models.PublicModel, 0, len(r.byName))
	for _, m := range r.byName {
		list = append(list, clone(m))
	}
	sort.Slice(list, func(i, j int) bool { return list[i].PublicName < list[j].PublicName })
	return list, nil
}

// GetModelByName returns a copy of the named model
func (r *CatalogRepository) GetModelByName(ctx context.Context, name string) (*models.PublicModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("public model %q: %w", name, repositories.ErrNotFound)
	}
	return clone(m), nil
}

// Put adds or replaces a model
func (r *CatalogRepository) Put(m *models.PublicModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[m.PublicName] = clone(m)
}

// Len returns the number of models
func (r *CatalogRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// clone copies the model and its variant slice so callers may
// normalize the result without touching the stored catalog.
func clone(m *models.PublicModel) *models.PublicModel {
	c := *m
	c.Variants = append([]models.ModelVariant(nil), m.Variants...)
	return &c
}
