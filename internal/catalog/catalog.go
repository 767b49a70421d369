// Package catalog manages the set of known LLM models: vendors, variants,
// aliases, and the process-scoped allow-list (Registry) with a default model.
// All types are immutable after construction and safe to share across
// goroutines without synchronization.
package catalog

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

//go:embed models.json
var defaultCatalogFS embed.FS

// ErrUnknownModel is returned when an identifier matches no variant.
var ErrUnknownModel = errors.New("unknown model")

// Tier classes used for routing decisions.
const (
	TierFast     = "fast"     // low latency, used for classification calls
	TierStandard = "standard" // balanced, default execution tier
	TierDeep     = "deep"     // maximum capability, highest cost
)

// ModelSpec is a normalized reference to one vendor-scoped model variant.
// Two specs with the same vendor and variant ID are interchangeable; the
// struct is comparable and usable as a map key.
type ModelSpec struct {
	Vendor    string `json:"vendor"`
	VariantID string `json:"variant_id"`
}

// String renders the spec in "vendor:variant" form.
func (s ModelSpec) String() string {
	return s.Vendor + ":" + s.VariantID
}

// ModelVariant is one concrete model version within a vendor's catalog.
// Multiple identifiers (ID, API ID, aliases) resolve to the same variant.
type ModelVariant struct {
	ID        string   `json:"id"`
	APIID     string   `json:"api_id"`
	Family    string   `json:"family,omitempty"`
	Tier      string   `json:"tier,omitempty"`
	TierClass string   `json:"tier_class,omitempty"`
	Aliases   []string `json:"aliases,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// Identifiers returns every valid lookup key for the variant: its ID, its
// API ID, and all aliases. The result has no duplicates.
func (v ModelVariant) Identifiers() []string {
	seen := map[string]bool{v.ID: true}
	ids := []string{v.ID}
	for _, id := range append([]string{v.APIID}, v.Aliases...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// VendorCatalog holds all variants offered by a single vendor plus a
// precomputed identifier index for O(1) lookups.
type VendorCatalog struct {
	Vendor          string         `json:"vendor"`
	AvailableModels []ModelVariant `json:"available_models"`

	byIdentifier map[string]int // identifier -> index into AvailableModels
}

// NewVendorCatalog validates the variant set and builds the reverse index.
// A duplicate identifier within one vendor is a configuration error and is
// rejected outright.
func NewVendorCatalog(vendor string, variants []ModelVariant) (VendorCatalog, error) {
	vc := VendorCatalog{
		Vendor:          vendor,
		AvailableModels: variants,
		byIdentifier:    make(map[string]int),
	}
	var dups []string
	for i, variant := range variants {
		if variant.ID == "" {
			return VendorCatalog{}, fmt.Errorf("vendor %q: variant %d has empty id", vendor, i)
		}
		for _, id := range variant.Identifiers() {
			if _, exists := vc.byIdentifier[id]; exists {
				dups = append(dups, id)
				continue
			}
			vc.byIdentifier[id] = i
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return VendorCatalog{}, fmt.Errorf("duplicate model identifiers for vendor %q: %v", vendor, dups)
	}
	return vc, nil
}

// FindVariant resolves any identifier (ID, API ID, or alias) to its variant.
func (vc VendorCatalog) FindVariant(identifier string) (ModelVariant, error) {
	i, ok := vc.byIdentifier[strings.TrimSpace(identifier)]
	if !ok {
		return ModelVariant{}, fmt.Errorf("model %q not registered for vendor %q: %w", identifier, vc.Vendor, ErrUnknownModel)
	}
	return vc.AvailableModels[i], nil
}

// Catalog maps vendor tags to their vendor catalogs.
type Catalog struct {
	vendors map[string]VendorCatalog
	order   []string // vendor tags in declaration order
}

// vendorEntry mirrors the per-vendor JSON shape of the catalog file.
type vendorEntry struct {
	AvailableModels []ModelVariant `json:"available_models"`
}

// FromJSON parses and validates a catalog document. The document is a JSON
// object keyed by vendor tag; validation failures (duplicate identifiers,
// empty variant IDs) are fatal.
func FromJSON(data []byte) (*Catalog, error) {
	var raw map[string]vendorEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	c := &Catalog{vendors: make(map[string]VendorCatalog, len(raw))}
	for vendor := range raw {
		c.order = append(c.order, vendor)
	}
	sort.Strings(c.order)

	for _, vendor := range c.order {
		vc, err := NewVendorCatalog(vendor, raw[vendor].AvailableModels)
		if err != nil {
			return nil, err
		}
		c.vendors[vendor] = vc
	}
	return c, nil
}

// LoadFile reads a catalog from path, falling back to the embedded default
// catalog when path is empty.
func LoadFile(path string) (*Catalog, error) {
	var (
		data []byte
		err  error
	)
	if path == "" {
		data, err = defaultCatalogFS.ReadFile("models.json")
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return FromJSON(data)
}

// Vendors returns the known vendor tags in stable order.
func (c *Catalog) Vendors() []string {
	return append([]string(nil), c.order...)
}

// Vendor returns the catalog for one vendor tag.
func (c *Catalog) Vendor(vendor string) (VendorCatalog, error) {
	vc, ok := c.vendors[vendor]
	if !ok {
		return VendorCatalog{}, fmt.Errorf("vendor %q not registered: %w", vendor, ErrUnknownModel)
	}
	return vc, nil
}

// ParseSpec resolves a "vendor:identifier" string to a normalized ModelSpec.
// The identifier may be a variant ID, API ID, or alias; the returned spec
// always carries the canonical variant ID.
func (c *Catalog) ParseSpec(identifier string) (ModelSpec, error) {
	vendor, variantID, ok := strings.Cut(identifier, ":")
	if !ok {
		return ModelSpec{}, fmt.Errorf("model identifier %q must be in 'vendor:model' format", identifier)
	}
	vc, err := c.Vendor(strings.TrimSpace(vendor))
	if err != nil {
		return ModelSpec{}, err
	}
	variant, err := vc.FindVariant(variantID)
	if err != nil {
		return ModelSpec{}, err
	}
	return ModelSpec{Vendor: vc.Vendor, VariantID: variant.ID}, nil
}

// EnsureSpec verifies that spec refers to a known variant.
func (c *Catalog) EnsureSpec(spec ModelSpec) error {
	vc, err := c.Vendor(spec.Vendor)
	if err != nil {
		return err
	}
	_, err = vc.FindVariant(spec.VariantID)
	return err
}

// Variant returns the full variant metadata for a spec.
func (c *Catalog) Variant(spec ModelSpec) (ModelVariant, error) {
	vc, err := c.Vendor(spec.Vendor)
	if err != nil {
		return ModelVariant{}, err
	}
	return vc.FindVariant(spec.VariantID)
}

// APIModel returns the provider API string for a spec (the identifier sent
// on the wire to the executor).
func (c *Catalog) APIModel(spec ModelSpec) (string, error) {
	variant, err := c.Variant(spec)
	if err != nil {
		return "", err
	}
	if variant.APIID != "" {
		return variant.APIID, nil
	}
	return variant.ID, nil
}
