package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// KeyField oznacza błąd dotyczący klucza naturalnego (np. duplikat w pliku).
const KeyField = "_key"

// HeaderOffset: numer linii w pliku = indeks wiersza danych + 1 (1-based) + 1 (nagłówek).
const HeaderOffset = 2

// ValidationError opisuje jeden błąd jednego wiersza.
type ValidationError struct {
	Line    int    `json:"line"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("line %d, %s: %s", e.Line, e.Field, e.Message)
}

// ValidationErrors zbiera błędy wierszy; jako error używane w ścieżkach
// "wszystko albo nic".
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	switch len(v) {
	case 0:
		return "no validation errors"
	case 1:
		return v[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more)", v[0].Error(), len(v)-1)
	}
}

// First zwraca co najwyżej n pierwszych błędów.
func (v ValidationErrors) First(n int) ValidationErrors {
	if n < 0 || len(v) <= n {
		return v
	}
	return v[:n]
}

// LineFor zamienia indeks wiersza danych (od 0) na numer linii w pliku.
func LineFor(index int) int { return index + HeaderOffset }

// WriteErrorsCSV zapisuje raport błędów (line,field,message,value).
func WriteErrorsCSV(w io.Writer, errs []ValidationError) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"line", "field", "message", "value"}); err != nil {
		return err
	}
	for _, e := range errs {
		if err := cw.Write([]string{strconv.Itoa(e.Line), e.Field, e.Message, e.Value}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
