package dataset

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldKind mówi, jak surowa wartość jest koercjonowana.
type FieldKind int

const (
	KindText  FieldKind = iota // trim
	KindUpper                  // trim + upper
	KindInt                    // liczba całkowita (string albo number)
	KindFlag                   // oui/non, true/false, 0/1 -> 0/1
)

type Field struct {
	Name     string
	Kind     FieldKind
	Required bool
	// Default wypełnia puste/niezmapowane pola liczbowe (nil = brak domyślnej).
	Default  *int64
	Rules    string // tag go-playground/validator, np. "min=1,max=99"
	Synonyms []string
}

// Record to zwalidowany wiersz: kolumna -> string | int64 | nil.
type Record map[string]any

func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Text zwraca wartość pola w postaci tekstowej (nil -> "").
func (r Record) Text(field string) string {
	return AsString(r[field])
}

type Schema struct {
	Type  string
	Table string

	Fields []Field

	// KeyColumns to kolumny, z których składa się klucz naturalny.
	KeyColumns []string
	// Generated to kolumny liczone po stronie bazy, wycinane z payloadu update.
	Generated []string

	Sensitive    []string
	NonSensitive []string

	// NaturalKey liczy klucz naturalny zwalidowanego wiersza.
	NaturalKey func(Record) string
	// Derive uzupełnia pola pochodne po koercji (może być nil).
	Derive func(Record)
}

func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (s *Schema) FieldNames() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Name)
	}
	return out
}

// TrackedFields to pola porównywane przy diffie: sensitive ∪ non-sensitive,
// a gdy podziału nie ma, wszystkie zadeklarowane pola.
func (s *Schema) TrackedFields() []string {
	if len(s.Sensitive) == 0 && len(s.NonSensitive) == 0 {
		return s.FieldNames()
	}
	out := make([]string, 0, len(s.Sensitive)+len(s.NonSensitive))
	out = append(out, s.Sensitive...)
	return append(out, s.NonSensitive...)
}

func (s *Schema) HasSensitiveSplit() bool { return len(s.Sensitive) > 0 }

func (s *Schema) IsSensitive(field string) bool {
	for _, f := range s.Sensitive {
		if f == field {
			return true
		}
	}
	return false
}

func (s *Schema) IsGenerated(column string) bool {
	for _, c := range s.Generated {
		if c == column {
			return true
		}
	}
	return false
}

// AsString odwzorowuje String(v ?? ''): porównania odporne na dryf typów
// między bazą (int32, []byte, float64...) a importem.
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case *string:
		if t == nil {
			return ""
		}
		return *t
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func ptr(v int64) *int64 { return &v }
