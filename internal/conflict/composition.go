// internal/conflict/composition.go
package conflict

import (
	"sort"

	"github.com/aetflow/aet-backend/internal/models"
)

type CompositionType string

const (
	CompositionSimple    CompositionType = "simple"
	CompositionBitrain   CompositionType = "bitrain"
	CompositionRoadtrain CompositionType = "roadtrain"
	CompositionDollyOnly CompositionType = "dolly-only"
)

// Vehicle roles inside a composition.
const (
	RoleTractor  = "tractor"
	RoleTrailer1 = "trailer1"
	RoleTrailer2 = "trailer2"
	RoleDolly    = "dolly"
	RoleFlatbed  = "flatbed"
	RoleTow      = "tow"
)

// PlateSet holds the plate filling each role of a proposed composition.
type PlateSet struct {
	Tractor  string `json:"tractor"`
	Trailer1 string `json:"trailer1"`
	Trailer2 string `json:"trailer2,omitempty"`
	Dolly    string `json:"dolly,omitempty"`
	Flatbed  string `json:"flatbed,omitempty"`
	Tow      string `json:"tow,omitempty"`
}

// Normalized returns a copy with every slot passed through Normalize.
func (p PlateSet) Normalized() PlateSet {
	return PlateSet{
		Tractor:  Normalize(p.Tractor),
		Trailer1: Normalize(p.Trailer1),
		Trailer2: Normalize(p.Trailer2),
		Dolly:    Normalize(p.Dolly),
		Flatbed:  Normalize(p.Flatbed),
		Tow:      Normalize(p.Tow),
	}
}

// IsEmpty reports whether no slot holds a plate once normalized.
func (p PlateSet) IsEmpty() bool {
	n := p.Normalized()
	return n == PlateSet{}
}

// SearchPlates lists the distinct normalized plates used to pre-filter issued
// licenses. The dolly is left out: dollies are interchangeable equipment and
// sharing one never makes two compositions equivalent.
func (p PlateSet) SearchPlates() []string {
	n := p.Normalized()
	seen := make(map[string]struct{}, 5)
	plates := make([]string, 0, 5)
	for _, plate := range []string{n.Tractor, n.Trailer1, n.Trailer2, n.Flatbed, n.Tow} {
		if plate == "" {
			continue
		}
		if _, dup := seen[plate]; dup {
			continue
		}
		seen[plate] = struct{}{}
		plates = append(plates, plate)
	}
	sort.Strings(plates)
	return plates
}

// matchKey is the tuple compared by the composition-exact strategy.
type matchKey struct {
	tractor, trailer1, trailer2 string
}

func (p PlateSet) matchKey() matchKey {
	n := p.Normalized()
	return matchKey{n.Tractor, n.Trailer1, n.Trailer2}
}

func licenseMatchKey(l *models.IssuedLicense) matchKey {
	return matchKey{Normalize(l.TractorPlate), Normalize(l.Trailer1Plate), Normalize(l.Trailer2Plate)}
}

// PlateSetFromLicense rebuilds the composition recorded on an issued license.
func PlateSetFromLicense(l *models.IssuedLicense) PlateSet {
	return PlateSet{
		Tractor:  l.TractorPlate,
		Trailer1: l.Trailer1Plate,
		Trailer2: l.Trailer2Plate,
		Dolly:    l.DollyPlate,
		Flatbed:  l.FlatbedPlate,
		Tow:      l.TowPlate,
	}
}

// Classify tags a composition by the roles it fills. Tractor and trailer-1 are
// mandatory; an empty composition is rejected as well.
func Classify(positions PlateSet) (CompositionType, error) {
	n := positions.Normalized()

	var missing []string
	if n.Tractor == "" {
		missing = append(missing, RoleTractor)
	}
	if n.Trailer1 == "" {
		missing = append(missing, RoleTrailer1)
	}
	if len(missing) > 0 {
		return "", &InvalidCompositionError{Missing: missing, Empty: positions.IsEmpty()}
	}

	hasDolly := n.Dolly != ""
	hasTrailer2 := n.Trailer2 != ""

	switch {
	case hasDolly && hasTrailer2:
		return CompositionRoadtrain, nil
	case hasDolly:
		return CompositionDollyOnly, nil
	case hasTrailer2:
		return CompositionBitrain, nil
	default:
		return CompositionSimple, nil
	}
}
