package reconcile

import (
	"fmt"

	"github.com/bartek5186/pricebridge/internal/dataset"
)

type Action string

const (
	ActionKeep    Action = "keep"
	ActionReplace Action = "replace"
	ActionMerge   Action = "merge"
)

type Choice string

const (
	ChoiceExisting Choice = "existing"
	ChoiceImport   Choice = "import"
)

type Resolution struct {
	Action       Action            `json:"action"`
	FieldChoices map[string]Choice `json:"field_choices,omitempty"`
}

func (r Resolution) Validate() error {
	switch r.Action {
	case ActionKeep, ActionReplace, ActionMerge:
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	for f, c := range r.FieldChoices {
		if c != ChoiceExisting && c != ChoiceImport {
			return fmt.Errorf("field %s: unknown choice %q", f, c)
		}
	}
	return nil
}

// Resolutions to decyzje użytkownika, kluczowane kluczem naturalnym pozycji diffu.
type Resolutions map[string]Resolution

func (rs Resolutions) Set(key string, r Resolution) { rs[key] = r }

func (rs Resolutions) Get(key string) (Resolution, bool) {
	r, ok := rs[key]
	return r, ok
}

func (rs Resolutions) Validate() error {
	for k, r := range rs {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("resolution for %s: %w", k, err)
		}
	}
	return nil
}

// BulkResolve ustawia jedną akcję dla wszystkich pozycji o statusie z filtra.
// Pozostałych pozycji nie dotyka. Zwraca liczbę ustawionych decyzji.
func (rs Resolutions) BulkResolve(items []Item, statuses []Status, action Action) int {
	n := 0
	for _, it := range items {
		if !hasStatus(statuses, it.Status) {
			continue
		}
		rs[it.Key] = Resolution{Action: action}
		n++
	}
	return n
}

// Resolve liczy wiersz końcowy dla pozycji. skip=true oznacza, że nic nie zapisujemy.
//
// Bez decyzji: konflikt jest pomijany, create/update biorą wartości z importu.
func (rs Resolutions) Resolve(it Item) (final dataset.Record, skip bool) {
	if it.Status == StatusUnchanged {
		return nil, true
	}
	r, ok := rs[it.Key]
	if !ok {
		if it.Status == StatusConflict {
			return nil, true
		}
		return overlay(it.Before, it.After), false
	}
	return Apply(it, r)
}

// Apply stosuje pojedynczą decyzję do pozycji.
func Apply(it Item, r Resolution) (dataset.Record, bool) {
	switch r.Action {
	case ActionKeep:
		return nil, true
	case ActionMerge:
		if it.Before == nil {
			return it.After.Clone(), false
		}
		out := it.Before.Clone()
		for _, f := range it.ChangedFields {
			if r.FieldChoices[f] == ChoiceExisting {
				continue
			}
			out[f] = it.After[f]
		}
		return out, false
	default:
		return overlay(it.Before, it.After), false
	}
}

// Partition to podział pozycji diffu na zapisy.
type Partition struct {
	Creates []Row
	Updates []Update
	Skipped int
}

// Update to zmiana istniejącego wiersza; Match trzyma kolumny klucza z bazy.
type Update struct {
	Key    string
	Line   int
	Match  dataset.Record
	Values dataset.Record
}

// Split dzieli pozycje według decyzji: unchanged i keep idą do Skipped.
func (rs Resolutions) Split(items []Item, s *dataset.Schema) Partition {
	var p Partition
	for _, it := range items {
		final, skip := rs.Resolve(it)
		if skip {
			p.Skipped++
			continue
		}
		if it.Before == nil {
			p.Creates = append(p.Creates, Row{Line: it.Line, Key: it.Key, Record: final})
			continue
		}
		match := make(dataset.Record, len(s.KeyColumns))
		for _, c := range s.KeyColumns {
			match[c] = it.Before[c]
		}
		p.Updates = append(p.Updates, Update{Key: it.Key, Line: it.Line, Match: match, Values: final})
	}
	return p
}

func overlay(before, after dataset.Record) dataset.Record {
	out := make(dataset.Record, len(before)+len(after))
	for k, v := range before {
		out[k] = v
	}
	for k, v := range after {
		out[k] = v
	}
	return out
}
