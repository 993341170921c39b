package importer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/db"
)

// Replacer obsługuje import "zastąp wszystko": cała tabela jest czyszczona
// i ładowana od nowa z przesłanego zestawu wierszy.
type Replacer struct {
	repo Repository
	opt  Options
	log  zerolog.Logger
}

func NewReplacer(repo Repository, opt Options, log zerolog.Logger) *Replacer {
	return &Replacer{repo: repo, opt: opt.withDefaults(), log: log.With().Str("component", "replace-all").Logger()}
}

// ReplaceAll waliduje wszystkie wiersze (nieznane pola to błąd). Przy jakimkolwiek
// błędzie nic nie jest zapisywane i batch nie powstaje.
func (r *Replacer) ReplaceAll(ctx context.Context, schema *dataset.Schema, rows []map[string]any, userID, source string) (*Result, error) {
	if userID == "" {
		return nil, apperr.Integrity("replace-all requires a user id")
	}
	if len(rows) == 0 {
		return nil, apperr.BadRequest("no rows to import", nil)
	}

	mapping := dataset.IdentityMapping(schema)
	recs := make([]dataset.Record, 0, len(rows))
	var errs dataset.ValidationErrors
	seen := make(map[string]int, len(rows))
	for i, raw := range rows {
		line := dataset.LineFor(i)
		if unknown := schema.CheckUnknown(raw, line); len(unknown) > 0 {
			errs = append(errs, unknown...)
			continue
		}
		rec, rowErrs := schema.Validate(raw, mapping, line)
		if len(rowErrs) > 0 {
			errs = append(errs, rowErrs...)
			continue
		}
		key := schema.NaturalKey(rec)
		if first, dup := seen[key]; dup {
			errs = append(errs, dataset.ValidationError{Line: line, Field: dataset.KeyField,
				Message: fmt.Sprintf("duplicate key (first seen on line %d)", first), Value: key})
			continue
		}
		seen[key] = line
		recs = append(recs, rec)
	}
	if len(errs) > 0 {
		first := errs.First(r.opt.MaxReportedErrors)
		return nil, apperr.Validation(
			fmt.Sprintf("%d rows failed validation", len(errs)),
			map[string]any{"errors": first, "total": len(errs)},
		)
	}

	batch := &db.ImportBatch{FileName: source, UserID: userID, DatasetType: schema.Type, TotalLines: len(rows)}
	if err := r.repo.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	sess, err := r.repo.Begin(batch.ID, "replace all "+schema.Table, userID)
	if err != nil {
		r.repo.FailBatch(ctx, batch.ID, err)
		return nil, err
	}
	defer sess.Close()

	if err := r.repo.TransitionBatch(ctx, batch.ID, db.BatchProcessing, nil); err != nil {
		r.repo.FailBatch(ctx, batch.ID, err)
		return nil, err
	}
	if err := r.repo.ReplaceAll(ctx, sess, schema, recs, r.opt.ChunkSize); err != nil {
		r.repo.FailBatch(ctx, batch.ID, err)
		return nil, err
	}
	if err := r.repo.TransitionBatch(ctx, batch.ID, db.BatchCompleted, map[string]any{
		"processed_lines": len(recs),
		"created_count":   len(recs),
	}); err != nil {
		r.repo.FailBatch(ctx, batch.ID, err)
		return nil, err
	}

	r.log.Info().Str("batch_id", batch.ID).Str("table", schema.Table).Int("rows", len(recs)).Msg("table replaced")
	return &Result{BatchID: batch.ID, Created: len(recs)}, nil
}
