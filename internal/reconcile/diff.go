package reconcile

import (
	"github.com/bartek5186/pricebridge/internal/dataset"
)

type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusCreate    Status = "create"
	StatusUpdate    Status = "update"
	StatusConflict  Status = "conflict"
)

// Row to zwalidowany wiersz importu razem z numerem linii i kluczem naturalnym.
type Row struct {
	Line   int            `json:"line"`
	Key    string         `json:"key"`
	Record dataset.Record `json:"record"`
}

// Item to wynik porównania jednego wiersza z bazą. Po wyliczeniu się nie zmienia.
type Item struct {
	Key              string         `json:"key"`
	Line             int            `json:"line"`
	Status           Status         `json:"status"`
	Before           dataset.Record `json:"before,omitempty"`
	After            dataset.Record `json:"after"`
	ChangedFields    []string       `json:"changed_fields,omitempty"`
	SensitiveChanged bool           `json:"sensitive_changed,omitempty"`
}

type Counts struct {
	Unchanged int `json:"unchanged"`
	Create    int `json:"create"`
	Update    int `json:"update"`
	Conflict  int `json:"conflict"`
}

func (c Counts) Total() int { return c.Unchanged + c.Create + c.Update + c.Conflict }

func (c *Counts) add(s Status) {
	switch s {
	case StatusUnchanged:
		c.Unchanged++
	case StatusCreate:
		c.Create++
	case StatusUpdate:
		c.Update++
	case StatusConflict:
		c.Conflict++
	}
}

type Diff struct {
	Counts Counts `json:"counts"`
	Items  []Item `json:"items"`
}

// Filter zwraca pozycje o podanych statusach (kolejność wejścia zachowana).
func (d *Diff) Filter(statuses ...Status) []Item {
	out := make([]Item, 0, len(d.Items))
	for _, it := range d.Items {
		if hasStatus(statuses, it.Status) {
			out = append(out, it)
		}
	}
	return out
}

// Keys zwraca klucze naturalne wierszy bez powtórzeń, w kolejności wejścia.
func Keys(rows []Row) []string {
	seen := make(map[string]struct{}, len(rows))
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		out = append(out, r.Key)
	}
	return out
}

// Compute klasyfikuje każdy wiersz względem istniejących rekordów (po kluczu).
// Pola porównywane są jako tekst, żeby różnice typów (int32 z bazy vs int64
// z importu) nie dawały fałszywych zmian.
func Compute(rows []Row, existing map[string]dataset.Record, s *dataset.Schema) *Diff {
	d := &Diff{Items: make([]Item, 0, len(rows))}
	tracked := s.TrackedFields()

	for _, r := range rows {
		it := Item{Key: r.Key, Line: r.Line, After: r.Record}

		before, ok := existing[r.Key]
		if !ok {
			it.Status = StatusCreate
			d.Counts.add(it.Status)
			d.Items = append(d.Items, it)
			continue
		}

		it.Before = before
		for _, f := range tracked {
			in, ok := r.Record[f]
			if !ok {
				// pole spoza pliku nie jest porównywane ani zapisywane
				continue
			}
			if dataset.AsString(before[f]) == dataset.AsString(in) {
				continue
			}
			it.ChangedFields = append(it.ChangedFields, f)
			if s.IsSensitive(f) {
				it.SensitiveChanged = true
			}
		}

		switch {
		case len(it.ChangedFields) == 0:
			it.Status = StatusUnchanged
		case s.HasSensitiveSplit() && it.SensitiveChanged:
			it.Status = StatusConflict
		default:
			it.Status = StatusUpdate
		}
		d.Counts.add(it.Status)
		d.Items = append(d.Items, it)
	}
	return d
}

func hasStatus(list []Status, s Status) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
