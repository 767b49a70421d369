package catalog

import "fmt"

// Registry is the allow-listed subset of a catalog scoped to one running
// process: a default spec plus an ordered, deduplicated list of available
// specs with the default always first. Immutable after construction.
type Registry struct {
	catalog   *Catalog
	defaultSp ModelSpec
	available []ModelSpec
}

// NewRegistry builds a registry. The default is validated against the
// catalog and inserted at the head of the available list if the caller did
// not include it; duplicates in available are dropped, preserving order.
func NewRegistry(c *Catalog, defaultSpec ModelSpec, available []ModelSpec) (*Registry, error) {
	if err := c.EnsureSpec(defaultSpec); err != nil {
		return nil, fmt.Errorf("registry default: %w", err)
	}

	seen := map[ModelSpec]bool{defaultSpec: true}
	ordered := []ModelSpec{defaultSpec}
	for _, spec := range available {
		if seen[spec] {
			continue
		}
		if err := c.EnsureSpec(spec); err != nil {
			return nil, fmt.Errorf("registry allow-list: %w", err)
		}
		seen[spec] = true
		ordered = append(ordered, spec)
	}

	return &Registry{catalog: c, defaultSp: defaultSpec, available: ordered}, nil
}

// Catalog returns the underlying catalog.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// Default returns the registry's default spec.
func (r *Registry) Default() ModelSpec {
	return r.defaultSp
}

// Available returns the allow-listed specs, default first.
func (r *Registry) Available() []ModelSpec {
	return append([]ModelSpec(nil), r.available...)
}

// Contains reports whether spec is allow-listed.
func (r *Registry) Contains(spec ModelSpec) bool {
	for _, s := range r.available {
		if s == spec {
			return true
		}
	}
	return false
}

// IDs returns the allow-listed specs as "vendor:variant" strings.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.available))
	for i, spec := range r.available {
		ids[i] = spec.String()
	}
	return ids
}

// ResolveSpec validates that spec is known and allow-listed.
func (r *Registry) ResolveSpec(spec ModelSpec) (ModelSpec, error) {
	if err := r.catalog.EnsureSpec(spec); err != nil {
		return ModelSpec{}, err
	}
	if !r.Contains(spec) {
		return ModelSpec{}, fmt.Errorf("model not allow-listed: %s", spec)
	}
	return spec, nil
}

// ResolveIdentifier parses a "vendor:identifier" string and validates it
// against the allow-list.
func (r *Registry) ResolveIdentifier(identifier string) (ModelSpec, error) {
	spec, err := r.catalog.ParseSpec(identifier)
	if err != nil {
		return ModelSpec{}, err
	}
	return r.ResolveSpec(spec)
}

// ResolveOrDefault returns *spec when non-nil (validated) and the registry
// default otherwise.
func (r *Registry) ResolveOrDefault(spec *ModelSpec) (ModelSpec, error) {
	if spec == nil {
		return r.defaultSp, nil
	}
	return r.ResolveSpec(*spec)
}

// FastSpec returns the first allow-listed spec whose variant is fast-tier,
// falling back to the registry default when none exists. Classifiers use
// this as their decision model.
func (r *Registry) FastSpec() ModelSpec {
	for _, spec := range r.available {
		variant, err := r.catalog.Variant(spec)
		if err == nil && variant.TierClass == TierFast {
			return spec
		}
	}
	return r.defaultSp
}
