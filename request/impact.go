package request

import (
	"math"
	"sort"
)

// Material names used in sorted material breakdowns.
const (
	MaterialPlastic = "plastic"
	MaterialPaper   = "paper"
	MaterialGlass   = "glass"
	MaterialMetal   = "metal"
	MaterialOrganic = "organic"
	MaterialOther   = "other"
)

type impactFactor struct {
	co2, water, trees float64
}

// Savings per kilogram of each material. Anything not listed uses
// otherFactor.
var impactFactors = map[string]impactFactor{
	MaterialPlastic: {co2: 2.5, water: 100},
	MaterialPaper:   {co2: 1.8, water: 50, trees: 0.017},
	MaterialGlass:   {co2: 0.6, water: 20},
	MaterialMetal:   {co2: 4.0, water: 40},
	MaterialOrganic: {co2: 0.5},
}

var otherFactor = impactFactor{co2: 1.0, water: 30}

// Per-bag estimate used when no sorted materials are known.
var perBagFactor = impactFactor{co2: 2.5, water: 100, trees: 0.05}

// ComputeImpact derives the environmental impact from a material breakdown
// in kilograms.
func ComputeImpact(materials map[string]float64) Impact {
	// Sum in a fixed order so results do not depend on map iteration.
	names := make([]string, 0, len(materials))
	for name := range materials {
		names = append(names, name)
	}
	sort.Strings(names)

	var co2, water, trees float64
	for _, name := range names {
		kg := materials[name]
		f, ok := impactFactors[name]
		if !ok {
			f = otherFactor
		}
		co2 += kg * f.co2
		water += kg * f.water
		trees += kg * f.trees
	}
	return roundImpact(co2, water, trees)
}

// EstimateImpact is the bag based estimate. Previews shown before pickup
// and the completion fallback both use it, so they agree for equal input.
func EstimateImpact(bags int) Impact {
	n := float64(bags)
	return roundImpact(n*perBagFactor.co2, n*perBagFactor.water, n*perBagFactor.trees)
}

// ImpactFor returns the material based impact when a breakdown is present,
// otherwise the bag estimate.
func ImpactFor(r *Request) Impact {
	if len(r.SortedMaterials) > 0 {
		return ComputeImpact(r.SortedMaterials)
	}
	return EstimateImpact(r.Bags)
}

func roundImpact(co2, water, trees float64) Impact {
	return Impact{
		CO2Saved:   roundTo(co2, 1),
		WaterSaved: math.Round(water),
		TreesSaved: roundTo(trees, 2),
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ScannedBag is a bag identified by its QR code during pickup.
type ScannedBag struct {
	Code     string  `json:"code"`
	Material string  `json:"type,omitempty"`
	Weight   float64 `json:"weight,omitempty"` // kg
}

// AggregateMaterials sums scanned bag weights per material. Bags without a
// material count as other, bags without a weight as KilogramsPerBag.
func AggregateMaterials(bags []ScannedBag) map[string]float64 {
	out := make(map[string]float64)
	for _, b := range bags {
		material := b.Material
		if material == "" {
			material = MaterialOther
		}
		weight := b.Weight
		if weight == 0 {
			weight = KilogramsPerBag
		}
		out[material] += weight
	}
	return out
}
