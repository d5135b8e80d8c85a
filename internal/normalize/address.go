package normalize

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/listing-matcher/internal/debug"
)

// folders hands each caller its own Caser; a Caser must not be shared between goroutines
var folders = sync.Pool{
	New: func() any {
		c := cases.Fold()
		return &c
	},
}

// compound abbreviations that contain punctuation and must be expanded before punctuation is stripped
var compoundAbbrev = strings.NewReplacer(
	"пр-кт", " проспект ",
	"пр-т", " проспект ",
	"б-р", " бульвар ",
	"р-н", " район ",
	"мкр-н", " микрорайон ",
	"наб-я", " набережная ",
	"ш-се", " шоссе ",
	"пр-д", " проезд ",
)

// abbrevRules expand single-token Russian address abbreviations (dots already stripped)
var abbrevRules = map[string]string{
	"ул":    "улица",
	"д":     "дом",
	"дом":   "дом",
	"пр":    "проспект",
	"просп": "проспект",
	"пер":   "переулок",
	"корп":  "корпус",
	"кор":   "корпус",
	"к":     "корпус",
	"стр":   "строение",
	"с":     "строение",
	"лит":   "литера",
	"кв":    "квартира",
	"г":     "город",
	"гор":   "город",
	"наб":   "набережная",
	"ш":     "шоссе",
	"бул":   "бульвар",
	"бр":    "бульвар",
	"пл":    "площадь",
	"мкр":   "микрорайон",
	"мкрн":  "микрорайон",
	"обл":   "область",
	"пос":   "поселок",
	"п":     "поселок",
	"дер":   "деревня",
	"туп":   "тупик",
	"ал":    "аллея",
	"рф":    "россия",
	"эт":    "этаж",
}

// Fold lower-cases text in a locale-insensitive way, applies NFKC and folds ё into е
func Fold(s string) string {
	s = norm.NFKC.String(s)
	folder := folders.Get().(*cases.Caser)
	s = folder.String(s)
	folders.Put(folder)
	return strings.ReplaceAll(s, "ё", "е")
}

// CanonicalAddress normalizes a free-text Russian address into a canonical space separated form
func CanonicalAddress(raw string) (addrCan string, tokens []string) {
	return CanonicalAddressDebug(false, raw)
}

// CanonicalAddressDebug normalizes an address with optional debug output
func CanonicalAddressDebug(localDebug bool, raw string) (addrCan string, tokens []string) {
	debug.DebugHeader(localDebug)
	defer debug.DebugFooter(localDebug)

	tokens = Tokens(raw)
	addrCan = strings.Join(tokens, " ")

	debug.DebugOutput(localDebug, "Input: %s", raw)
	debug.DebugOutput(localDebug, "Final canonical: %s", addrCan)
	debug.DebugOutput(localDebug, "Tokens: %v", tokens)

	return addrCan, tokens
}

// Tokens folds the text, expands abbreviations and returns the canonical tokens
func Tokens(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}

	s := compoundAbbrev.Replace(Fold(raw))

	// Remove punctuation but keep "/" used in house numbers (10/2)
	b := strings.Builder{}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '/' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "/")
		if f == "" {
			continue
		}
		if expanded, ok := abbrevRules[f]; ok {
			f = expanded
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// SplitComponents splits an address into street, house, locality and remaining parts
func SplitComponents(text string) Components {
	return DefaultParser().Parse(text)
}

// ExtractHouseNumbers extracts house, building and block numbers from the address
func ExtractHouseNumbers(text string) []string {
	return DefaultParser().Parse(text).House
}

// TokenizeStreet extracts street name tokens (excluding numbers, apartments and localities)
func TokenizeStreet(text string) []string {
	return DefaultParser().Parse(text).Street
}

// ExtractLocalityTokens extracts city/region tokens from the address
func ExtractLocalityTokens(text string) []string {
	return DefaultParser().Parse(text).Locality
}

// IsBlank checks if an address is effectively blank after normalization
func IsBlank(addr string) bool {
	return len(Tokens(addr)) == 0
}

// TokenOverlap calculates overlap ratio between two token sets
func TokenOverlap(tokens1, tokens2 []string) float64 {
	if len(tokens1) == 0 && len(tokens2) == 0 {
		return 1.0
	}
	if len(tokens1) == 0 || len(tokens2) == 0 {
		return 0.0
	}

	set1 := make(map[string]bool)
	for _, token := range tokens1 {
		set1[token] = true
	}

	seen := make(map[string]bool)
	overlap := 0
	for _, token := range tokens2 {
		if set1[token] && !seen[token] {
			overlap++
		}
		seen[token] = true
	}

	// Return overlap as ratio of smaller set
	minLen := len(set1)
	if len(seen) < minLen {
		minLen = len(seen)
	}

	return float64(overlap) / float64(minLen)
}

func isNumeric(token string) bool {
	if token == "" {
		return false
	}
	r := []rune(token)[0]
	return unicode.IsDigit(r)
}
