package catalog

import "fmt"

// DefaultSpec picks a sensible default execution model from the given
// vendors, in order: the first standard-tier variant of the first vendor
// that has one, then the first variant of the first vendor, then anything
// in the catalog. Vendors not present in the catalog are skipped.
func (c *Catalog) DefaultSpec(vendors []string) (ModelSpec, error) {
	if len(vendors) == 0 {
		vendors = c.order
	}

	for _, vendor := range vendors {
		vc, ok := c.vendors[vendor]
		if !ok {
			continue
		}
		for _, variant := range vc.AvailableModels {
			if variant.TierClass == TierStandard {
				return ModelSpec{Vendor: vendor, VariantID: variant.ID}, nil
			}
		}
	}

	for _, vendor := range vendors {
		vc, ok := c.vendors[vendor]
		if !ok || len(vc.AvailableModels) == 0 {
			continue
		}
		return ModelSpec{Vendor: vendor, VariantID: vc.AvailableModels[0].ID}, nil
	}

	for _, vendor := range c.order {
		vc := c.vendors[vendor]
		if len(vc.AvailableModels) > 0 {
			return ModelSpec{Vendor: vendor, VariantID: vc.AvailableModels[0].ID}, nil
		}
	}

	return ModelSpec{}, fmt.Errorf("no models available in catalog")
}

// SpecsForVendors returns every variant of the given vendors as specs, in
// catalog order. Unknown vendors are skipped. An empty vendor list means
// all vendors.
func (c *Catalog) SpecsForVendors(vendors []string) []ModelSpec {
	if len(vendors) == 0 {
		vendors = c.order
	}
	var specs []ModelSpec
	for _, vendor := range vendors {
		vc, ok := c.vendors[vendor]
		if !ok {
			continue
		}
		for _, variant := range vc.AvailableModels {
			specs = append(specs, ModelSpec{Vendor: vendor, VariantID: variant.ID})
		}
	}
	return specs
}
