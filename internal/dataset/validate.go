package dataset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validator jest bezpieczny współbieżnie, wystarczy jedna instancja
var rules = validator.New()

// Project przepuszcza surowy wiersz przez mapowanie (pole -> nagłówek).
func Project(raw map[string]any, mapping map[string]string) map[string]any {
	out := make(map[string]any, len(mapping))
	for field, header := range mapping {
		if header == "" {
			continue
		}
		if v, ok := raw[header]; ok {
			out[field] = v
		}
	}
	return out
}

// IdentityMapping mapuje każde pole na nagłówek o tej samej nazwie.
func IdentityMapping(s *Schema) map[string]string {
	out := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Name] = f.Name
	}
	return out
}

// ValidateMapping sprawdza samo mapowanie: nieznane pola są odrzucane,
// a pola wymagane bez wartości domyślnej muszą być zmapowane.
func ValidateMapping(s *Schema, mapping map[string]string) ValidationErrors {
	var errs ValidationErrors

	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := s.Field(k); !ok {
			errs = append(errs, ValidationError{Field: k, Message: "unknown field for dataset " + s.Type, Value: mapping[k]})
		}
	}
	for _, f := range s.Fields {
		if f.Required && f.Default == nil && strings.TrimSpace(mapping[f.Name]) == "" {
			errs = append(errs, ValidationError{Field: f.Name, Message: "required field is not mapped to any column"})
		}
	}
	return errs
}

// Validate waliduje jeden wiersz według schematu typu zbioru.
func Validate(raw map[string]any, mapping map[string]string, datasetType string, line int) (Record, []ValidationError) {
	s, err := MustLookup(datasetType)
	if err != nil {
		return nil, []ValidationError{{Line: line, Field: KeyField, Message: err.Error()}}
	}
	return s.Validate(raw, mapping, line)
}

// Validate rzutuje wiersz przez mapowanie i koercjonuje pola. Nie ma stanu
// między wierszami, więc kolejność wywołań nie wpływa na wynik.
func (s *Schema) Validate(raw map[string]any, mapping map[string]string, line int) (Record, []ValidationError) {
	cand := Project(raw, mapping)
	rec := make(Record, len(s.Fields))
	var errs []ValidationError

	fail := func(f Field, msg string, v any) {
		errs = append(errs, ValidationError{Line: line, Field: f.Name, Message: msg, Value: AsString(v)})
	}

	for _, f := range s.Fields {
		v, present := cand[f.Name]
		// kolumna opcjonalna, której nie ma w pliku: nie ruszamy jej w bazie
		if !present && !f.Required && f.Default == nil {
			continue
		}

		switch f.Kind {
		case KindText, KindUpper:
			t := strings.TrimSpace(AsString(v))
			if f.Kind == KindUpper {
				t = strings.ToUpper(t)
			}
			if t == "" {
				if f.Required {
					fail(f, "required field is empty", v)
				}
				rec[f.Name] = nil
				continue
			}
			if msg := checkRules(f, t); msg != "" {
				fail(f, msg, v)
				continue
			}
			rec[f.Name] = t

		case KindInt:
			n, empty, err := coerceInt(v)
			if err != nil {
				fail(f, err.Error(), v)
				continue
			}
			if empty {
				switch {
				case f.Default != nil:
					rec[f.Name] = *f.Default
				case f.Required:
					fail(f, "required field is empty", v)
				default:
					rec[f.Name] = nil
				}
				continue
			}
			if msg := checkRules(f, n); msg != "" {
				fail(f, msg, v)
				continue
			}
			rec[f.Name] = n

		case KindFlag:
			n, empty, err := coerceFlag(v)
			if err != nil {
				fail(f, err.Error(), v)
				continue
			}
			if empty {
				var d int64
				if f.Default != nil {
					d = *f.Default
				}
				rec[f.Name] = d
				continue
			}
			rec[f.Name] = n
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	if s.Derive != nil {
		s.Derive(rec)
	}
	if s.NaturalKey != nil && s.NaturalKey(rec) == "" {
		return nil, []ValidationError{{Line: line, Field: KeyField, Message: "natural key is empty"}}
	}
	return rec, nil
}

// CheckUnknown zgłasza klucze surowego wiersza, których schemat nie zna
// (ścisła walidacja wierszy przychodzących bez mapowania, np. JSON).
func (s *Schema) CheckUnknown(raw map[string]any, line int) []ValidationError {
	var errs []ValidationError
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := s.Field(k); !ok {
			errs = append(errs, ValidationError{Line: line, Field: k, Message: "unknown field", Value: AsString(raw[k])})
		}
	}
	return errs
}

// Raw serializuje rekord z powrotem do postaci tekstowej (jak z pliku).
func (r Record) Raw() map[string]any {
	out := make(map[string]any, len(r))
	for k, v := range r {
		out[k] = AsString(v)
	}
	return out
}

func coerceInt(v any) (n int64, empty bool, err error) {
	switch t := v.(type) {
	case nil:
		return 0, true, nil
	case int:
		return int64(t), false, nil
	case int32:
		return int64(t), false, nil
	case int64:
		return t, false, nil
	case float64:
		return floatToInt(t)
	case float32:
		return floatToInt(float64(t))
	case bool:
		return 0, false, errors.New("must be an integer")
	}

	s := strings.TrimSpace(AsString(v))
	if s == "" {
		return 0, true, nil
	}
	if i, perr := strconv.ParseInt(s, 10, 64); perr == nil {
		return i, false, nil
	}
	f, perr := strconv.ParseFloat(s, 64)
	if perr != nil {
		return 0, false, errors.New("must be an integer")
	}
	return floatToInt(f)
}

func floatToInt(f float64) (int64, bool, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false, errors.New("must be an integer")
	}
	return int64(f), false, nil
}

func coerceFlag(v any) (n int64, empty bool, err error) {
	switch t := v.(type) {
	case nil:
		return 0, true, nil
	case bool:
		if t {
			return 1, false, nil
		}
		return 0, false, nil
	case int, int32, int64, float32, float64:
		i, _, ierr := coerceInt(t)
		if ierr != nil || (i != 0 && i != 1) {
			return 0, false, errors.New("must be 0 or 1")
		}
		return i, false, nil
	}

	switch strings.ToLower(strings.TrimSpace(AsString(v))) {
	case "":
		return 0, true, nil
	case "oui", "true", "1":
		return 1, false, nil
	case "non", "false", "0":
		return 0, false, nil
	default:
		return 0, false, errors.New("must be oui/non, true/false or 0/1")
	}
}

func checkRules(f Field, v any) string {
	if f.Rules == "" {
		return ""
	}
	err := rules.Var(v, f.Rules)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	_, isText := v.(string)
	switch fe.Tag() {
	case "min":
		if isText {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "max":
		if isText {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return fmt.Sprintf("must be <= %s", fe.Param())
	default:
		return fmt.Sprintf("failed rule %q", fe.Tag())
	}
}
