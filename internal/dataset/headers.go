package dataset

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize sprowadza nagłówek do postaci kanonicznej:
// bez diakrytyków, małe litery, tylko litery i cyfry ("Catégorie Fab." -> "categoriefab").
func Normalize(header string) string {
	// transformer jest stanowy, więc nowy na każde wywołanie
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, header)
	if err != nil {
		s = header
	}
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GuessMapping dopasowuje nagłówki pliku do pól schematu (pole -> nagłówek).
// Dla każdego pola wygrywa pierwszy nagłówek (w kolejności pliku), którego
// postać znormalizowana równa się któremuś synonimowi pola. Pola bez
// dopasowania nie pojawiają się w wyniku.
func GuessMapping(headers []string, s *Schema) map[string]string {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = Normalize(h)
	}

	out := make(map[string]string)
	for _, f := range s.Fields {
		syn := synonymSet(f)
		for i, nh := range normalized {
			if nh == "" {
				continue
			}
			if _, ok := syn[nh]; ok {
				out[f.Name] = headers[i]
				break
			}
		}
	}
	return out
}

// GuessMappingFor to GuessMapping po typie zbioru.
func GuessMappingFor(headers []string, datasetType string) (map[string]string, error) {
	s, err := MustLookup(datasetType)
	if err != nil {
		return nil, err
	}
	return GuessMapping(headers, s), nil
}

func synonymSet(f Field) map[string]struct{} {
	set := make(map[string]struct{}, len(f.Synonyms)+1)
	set[Normalize(f.Name)] = struct{}{}
	for _, syn := range f.Synonyms {
		if n := Normalize(syn); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}
