package resolver

import (
	"strings"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

var baseWeights = map[schemas.Category]float64{
	schemas.CategorySecurity:     0.25,
	schemas.CategoryPerformance:  0.20,
	schemas.CategoryCodeQuality:  0.25,
	schemas.CategoryArchitecture: 0.15,
	schemas.CategoryDependencies: 0.15,
}

// ComputeWeights derives category weights for a repository. Bigger
// repositories lean on architecture and performance, critical ones on
// security. The result always sums to 1.
func ComputeWeights(repo schemas.RepositoryContext) map[schemas.Category]float64 {
	w := make(map[schemas.Category]float64, len(baseWeights))
	for c, v := range baseWeights {
		w[c] = v
	}

	switch repo.Size {
	case schemas.RepoSizeLarge:
		w[schemas.CategoryArchitecture] += 0.05
		w[schemas.CategoryPerformance] += 0.05
	case schemas.RepoSizeEnterprise:
		w[schemas.CategoryArchitecture] += 0.10
		w[schemas.CategoryPerformance] += 0.05
	}

	switch repo.Criticality {
	case schemas.CriticalityHigh:
		w[schemas.CategorySecurity] += 0.10
	case schemas.CriticalityCritical:
		w[schemas.CategorySecurity] += 0.15
	}

	if strings.EqualFold(repo.Complexity, "high") {
		w[schemas.CategoryCodeQuality] += 0.05
		w[schemas.CategoryArchitecture] += 0.05
	}
	if len(repo.Frameworks) >= 3 {
		w[schemas.CategoryDependencies] += 0.05
	}

	return normalize(w)
}

func normalize(w map[schemas.Category]float64) map[schemas.Category]float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	if total == 0 {
		return w
	}
	for c, v := range w {
		w[c] = v / total
	}
	return w
}

func defaultThresholds() map[string]float64 {
	return map[string]float64{
		"max_new_critical":  0,
		"max_new_high":      3,
		"min_quality_score": 70,
	}
}

func defaultFeatures() map[string]bool {
	return map[string]bool{
		"location_enhancement": true,
		"educational_content":  true,
		"skill_tracking":       true,
	}
}
