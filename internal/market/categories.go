package market

import (
	"strings"

	"prediction-engine/pkg/types"
)

// categoryMap normalizes raw upstream category strings to the closed
// Category set. Keys are lowercase; unmapped values fall to Other.
var categoryMap = map[string]types.Category{
	"politics":       types.CategoryPolitics,
	"political":      types.CategoryPolitics,
	"elections":      types.CategoryPolitics,
	"us-politics":    types.CategoryPolitics,
	"geopolitics":    types.CategoryPolitics,
	"crypto":         types.CategoryCrypto,
	"cryptocurrency": types.CategoryCrypto,
	"bitcoin":        types.CategoryCrypto,
	"defi":           types.CategoryCrypto,
	"sports":         types.CategorySports,
	"sport":          types.CategorySports,
	"nfl":            types.CategorySports,
	"nba":            types.CategorySports,
	"soccer":         types.CategorySports,
	"tech":           types.CategoryTech,
	"technology":     types.CategoryTech,
	"ai":             types.CategoryTech,
	"economy":        types.CategoryEconomy,
	"economics":      types.CategoryEconomy,
	"finance":        types.CategoryEconomy,
	"business":       types.CategoryEconomy,
	"markets":        types.CategoryEconomy,
	"science":        types.CategoryScience,
	"climate":        types.CategoryScience,
	"health":         types.CategoryScience,
	"space":          types.CategoryScience,
	"entertainment":  types.CategoryEntertainment,
	"culture":        types.CategoryEntertainment,
	"pop-culture":    types.CategoryEntertainment,
	"movies":         types.CategoryEntertainment,
	"music":          types.CategoryEntertainment,
}

// MapCategory maps a raw category string to the closed Category set.
func MapCategory(raw string) types.Category {
	if c, ok := categoryMap[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return c
	}
	return types.CategoryOther
}
