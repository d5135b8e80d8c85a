package normalize

// Components is an address split into its structural parts
type Components struct {
	Street   []string // street type and name tokens
	House    []string // house, block and building numbers
	Locality []string // city, region and district names
	Rest     []string // apartment, floor and anything unclassified
}

// ComponentParser splits a raw address into structural components
type ComponentParser interface {
	Parse(raw string) Components
}

// RuleParser is the rule-based component parser used when libpostal is not compiled in
type RuleParser struct{}

var defaultParser ComponentParser = RuleParser{}

// DefaultParser returns the parser selected at build time
func DefaultParser() ComponentParser {
	return defaultParser
}

// localities that appear without a marker word in listing addresses
var knownLocalities = map[string]bool{
	"россия":       true,
	"москва":       true,
	"санкт":        true,
	"петербург":    true,
	"спб":          true,
	"мо":           true,
	"екатеринбург": true,
	"новосибирск":  true,
	"казань":       true,
	"краснодар":    true,
	"сочи":         true,
	"зеленоград":   true,
	"химки":        true,
	"мытищи":       true,
	"балашиха":     true,
	"подольск":     true,
	"красногорск":  true,
	"люберцы":      true,
}

// marker words whose name follows them: "город Москва"
var localityPrefix = map[string]bool{
	"город":   true,
	"поселок": true,
	"деревня": true,
	"село":    true,
}

// marker words whose name precedes them: "Московская область"
var localitySuffix = map[string]bool{
	"область":    true,
	"район":      true,
	"край":       true,
	"республика": true,
	"округ":      true,
}

var streetTypes = map[string]bool{
	"улица":      true,
	"проспект":   true,
	"переулок":   true,
	"шоссе":      true,
	"бульвар":    true,
	"набережная": true,
	"площадь":    true,
	"проезд":     true,
	"тупик":      true,
	"аллея":      true,
	"микрорайон": true,
	"линия":      true,
	"квартал":    true,
}

// words introducing a house part: the following token belongs to the house number
var houseMarkers = map[string]bool{
	"дом":      true,
	"корпус":   true,
	"строение": true,
	"литера":   true,
	"владение": true,
}

// words introducing a unit inside the building
var unitMarkers = map[string]bool{
	"квартира":  true,
	"этаж":      true,
	"офис":      true,
	"помещение": true,
	"комната":   true,
}

var ordinalSuffix = map[string]bool{
	"я":  true,
	"й":  true,
	"ая": true,
	"ый": true,
	"ой": true,
	"ий": true,
}

// Parse splits the address tokens into street, house, locality and the rest
func (RuleParser) Parse(raw string) Components {
	tokens := Tokens(raw)
	comp := Components{}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		next := ""
		if i+1 < len(tokens) {
			next = tokens[i+1]
		}

		switch {
		case localityPrefix[tok]:
			if next != "" {
				comp.Locality = append(comp.Locality, next)
				i++
			}
		case localitySuffix[tok]:
			// the name was already consumed as a street token
			if n := len(comp.Street); n > 0 && !streetTypes[comp.Street[n-1]] {
				comp.Locality = append(comp.Locality, comp.Street[n-1])
				comp.Street = comp.Street[:n-1]
			}
		case knownLocalities[tok]:
			comp.Locality = append(comp.Locality, tok)
		case unitMarkers[tok]:
			comp.Rest = append(comp.Rest, tok)
			if next != "" {
				comp.Rest = append(comp.Rest, next)
				i++
			}
		case houseMarkers[tok]:
			if next != "" {
				comp.House = append(comp.House, next)
				i++
			}
		case isNumeric(tok) && ordinalSuffix[next]:
			comp.Street = append(comp.Street, tok+next)
			i++
		case isNumeric(tok):
			comp.House = append(comp.House, tok)
		case len([]rune(tok)) == 1 && len(comp.House) > 0 && i > 0 && isNumeric(tokens[i-1]):
			// house letter written apart: "10 а"
			comp.House[len(comp.House)-1] += tok
		default:
			comp.Street = append(comp.Street, tok)
		}
	}

	return comp
}
