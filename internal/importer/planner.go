package importer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/reconcile"
	"github.com/bartek5186/pricebridge/internal/sheet"
)

// Plan to wynik przygotowania importu: wiersze poprawne, błędy i diff względem bazy.
// Ten sam plan karmi ścieżkę natychmiastową i odroczoną.
type Plan struct {
	Schema     *dataset.Schema          `json:"-"`
	Dataset    string                   `json:"dataset"`
	FileName   string                   `json:"file_name"`
	Headers    []string                 `json:"headers"`
	Mapping    map[string]string        `json:"mapping"`
	TotalLines int                      `json:"total_lines"`
	Valid      []reconcile.Row          `json:"-"`
	Errors     dataset.ValidationErrors `json:"errors"`
	Diff       *reconcile.Diff          `json:"diff"`
}

type Planner struct {
	repo Repository
	log  zerolog.Logger
}

func NewPlanner(repo Repository, log zerolog.Logger) *Planner {
	return &Planner{repo: repo, log: log.With().Str("component", "planner").Logger()}
}

// ResolveMapping zwraca mapowanie do użycia: podane albo zgadnięte z nagłówków.
// Mapowanie musi pasować do schematu i wskazywać kolumny istniejące w pliku.
func ResolveMapping(schema *dataset.Schema, headers []string, mapping map[string]string) (map[string]string, error) {
	if len(mapping) == 0 {
		mapping = dataset.GuessMapping(headers, schema)
	}
	errs := dataset.ValidateMapping(schema, mapping)

	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[h] = struct{}{}
	}
	for _, f := range schema.FieldNames() {
		h, ok := mapping[f]
		if !ok || h == "" {
			continue
		}
		if _, ok := present[h]; !ok {
			errs = append(errs, dataset.ValidationError{Field: f, Message: "mapped column not found in file", Value: h})
		}
	}
	if len(errs) > 0 {
		return nil, apperr.Validation("invalid column mapping", errs)
	}
	return mapping, nil
}

// ValidateRows waliduje wiersze niezależnie od siebie, a potem pilnuje
// unikalności klucza: zostaje pierwszy wiersz, kolejne to błędy "_key".
func ValidateRows(schema *dataset.Schema, rows []sheet.Row, mapping map[string]string) ([]reconcile.Row, dataset.ValidationErrors) {
	valid := make([]reconcile.Row, 0, len(rows))
	var errs dataset.ValidationErrors
	firstLine := make(map[string]int, len(rows))

	for _, r := range rows {
		rec, rowErrs := schema.Validate(r.Values, mapping, r.Line)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		key := schema.NaturalKey(rec)
		if first, dup := firstLine[key]; dup {
			errs = append(errs, dataset.ValidationError{
				Line:    r.Line,
				Field:   dataset.KeyField,
				Message: fmt.Sprintf("duplicate key (first seen on line %d)", first),
				Value:   key,
			})
			continue
		}
		firstLine[key] = r.Line
		valid = append(valid, reconcile.Row{Line: r.Line, Key: key, Record: rec})
	}
	return valid, errs
}

// Prepare: mapowanie -> walidacja -> pobranie istniejących wierszy -> diff.
func (p *Planner) Prepare(ctx context.Context, schema *dataset.Schema, fileName string, table *sheet.Table, mapping map[string]string) (*Plan, error) {
	mapping, err := ResolveMapping(schema, table.Headers, mapping)
	if err != nil {
		return nil, err
	}

	valid, errs := ValidateRows(schema, table.Rows, mapping)

	recs := make([]dataset.Record, len(valid))
	for i, r := range valid {
		recs[i] = r.Record
	}
	existing, err := p.repo.FetchExisting(ctx, schema, recs)
	if err != nil {
		return nil, err
	}
	diff := reconcile.Compute(valid, existing, schema)

	p.log.Info().
		Str("dataset", schema.Type).
		Str("file", fileName).
		Int("rows", len(table.Rows)).
		Int("valid", len(valid)).
		Int("invalid", len(errs)).
		Int("create", diff.Counts.Create).
		Int("update", diff.Counts.Update).
		Int("conflict", diff.Counts.Conflict).
		Int("unchanged", diff.Counts.Unchanged).
		Msg("import planned")

	return &Plan{
		Schema:     schema,
		Dataset:    schema.Type,
		FileName:   fileName,
		Headers:    table.Headers,
		Mapping:    mapping,
		TotalLines: len(table.Rows),
		Valid:      valid,
		Errors:     errs,
		Diff:       diff,
	}, nil
}
