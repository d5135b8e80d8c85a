//go:build libpostal

package normalize

import (
	postal "github.com/openvenues/gopostal/parser"
)

// PostalParser splits addresses with libpostal. Enabled with the libpostal build tag.
type PostalParser struct{}

func init() {
	defaultParser = PostalParser{}
}

// Parse maps libpostal labels onto address components
func (PostalParser) Parse(raw string) Components {
	comp := Components{}
	if IsBlank(raw) {
		return comp
	}

	for _, c := range postal.ParseAddress(Fold(raw)) {
		tokens := Tokens(c.Value)
		switch c.Label {
		case "road":
			comp.Street = append(comp.Street, tokens...)
		case "house_number":
			for _, t := range tokens {
				if !houseMarkers[t] {
					comp.House = append(comp.House, t)
				}
			}
		case "city", "city_district", "suburb", "state", "state_district", "country", "island":
			comp.Locality = append(comp.Locality, tokens...)
		default:
			comp.Rest = append(comp.Rest, tokens...)
		}
	}

	return comp
}
