package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/blob"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/db"
	"github.com/bartek5186/pricebridge/internal/queue"
	"github.com/bartek5186/pricebridge/internal/reconcile"
	"github.com/bartek5186/pricebridge/internal/store"
)

// Processor wykonuje zlecenie process-import: pobiera plik, waliduje wszystko
// (wszystko albo nic) i upsertuje chunkami z raportem postępu.
type Processor struct {
	planner *Planner
	repo    Repository
	blobs   blob.Store
	opt     Options
	log     zerolog.Logger
}

func NewProcessor(planner *Planner, repo Repository, blobs blob.Store, opt Options, log zerolog.Logger) *Processor {
	return &Processor{
		planner: planner,
		repo:    repo,
		blobs:   blobs,
		opt:     opt.withDefaults(),
		log:     log.With().Str("component", "processor").Logger(),
	}
}

// Outcome to wynik zlecenia zwracany przez funkcję process-import.
type Outcome struct {
	BatchID     string                   `json:"batch_id"`
	Status      string                   `json:"status"`
	Created     int                      `json:"created"`
	Updated     int                      `json:"updated"`
	Skipped     int                      `json:"skipped"`
	Errors      dataset.ValidationErrors `json:"errors,omitempty"`
	ErrorsTotal int                      `json:"errors_total,omitempty"`
}

// Process nadaje się na queue.Handler.
func (p *Processor) Process(ctx context.Context, m queue.Message) error {
	_, err := p.Run(ctx, m)
	return err
}

func (p *Processor) Run(ctx context.Context, m queue.Message) (*Outcome, error) {
	if err := m.Validate(); err != nil {
		return nil, apperr.BadRequest("invalid job", err)
	}
	log := p.log.With().Str("batch_id", m.BatchID).Str("dataset", m.DatasetType).Logger()

	batch, err := p.repo.GetBatch(ctx, m.BatchID)
	if err != nil {
		if ctx.Err() != nil {
			// zlecenie przerwane przed startem: batch nie może zostać w pending
			p.repo.FailBatch(ctx, m.BatchID, fmt.Errorf("job interrupted: %w", err))
		}
		return nil, err
	}
	if batch.Terminal() {
		// ponowne dostarczenie zlecenia: nic do zrobienia
		log.Warn().Str("status", batch.Status).Msg("batch already finished, skipping job")
		return &Outcome{BatchID: batch.ID, Status: batch.Status}, nil
	}
	if batch.UserID == "" {
		err := apperr.Integrity("import batch has no user_id")
		p.repo.FailBatch(ctx, batch.ID, err)
		return nil, err
	}

	// tylko jeden worker przejmuje batch (pending -> processing)
	if err := p.repo.ClaimBatch(ctx, batch.ID); err != nil {
		if errors.Is(err, store.ErrBadTransition) {
			cur, gerr := p.repo.GetBatch(ctx, batch.ID)
			if gerr != nil {
				return nil, gerr
			}
			log.Warn().Str("status", cur.Status).Msg("batch claimed by another worker, skipping job")
			return &Outcome{BatchID: cur.ID, Status: cur.Status}, nil
		}
		p.repo.FailBatch(ctx, batch.ID, err)
		return nil, err
	}

	out, err := p.run(ctx, batch, m, log)
	if err != nil {
		p.repo.FailBatch(ctx, batch.ID, err)
		return out, err
	}
	return out, nil
}

func (p *Processor) run(ctx context.Context, batch *db.ImportBatch, m queue.Message, log zerolog.Logger) (*Outcome, error) {
	schema, err := dataset.MustLookup(m.DatasetType)
	if err != nil {
		return nil, apperr.BadRequest("unknown dataset", err)
	}

	rc, err := p.blobs.Get(ctx, m.FilePath)
	if err != nil {
		return nil, apperr.Persistence("download import file", err)
	}
	content, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, apperr.Persistence("download import file", err)
	}
	sha := fileSHA256(content)
	if prev, _ := p.repo.FindCompletedBySHA(ctx, schema.Type, sha); prev != nil && prev.ID != batch.ID {
		log.Warn().Str("previous_batch", prev.ID).Msg("same file was already imported")
	}

	_, table, err := readTable(Request{Dataset: schema.Type, FileName: m.FilePath, Content: content})
	if err != nil {
		return nil, err
	}

	plan, err := p.planner.Prepare(ctx, schema, batch.FileName, table, m.Mapping)
	if err != nil {
		return nil, err
	}
	if len(plan.Errors) > 0 {
		first := plan.Errors.First(p.opt.MaxReportedErrors)
		out := &Outcome{BatchID: batch.ID, Status: db.BatchFailed, Errors: first, ErrorsTotal: len(plan.Errors)}
		log.Warn().Int("invalid", len(plan.Errors)).Msg("validation failed, nothing written")
		return out, apperr.Validation(
			fmt.Sprintf("%d rows failed validation", len(plan.Errors)),
			map[string]any{"errors": first, "total": len(plan.Errors)},
		)
	}

	summary, _ := jsonCounts(plan.Diff.Counts)
	if err := p.repo.TransitionBatch(ctx, batch.ID, db.BatchProcessing, map[string]any{
		"total_lines":  plan.TotalLines,
		"diff_summary": summary,
		"sha256":       sha,
	}); err != nil {
		return nil, err
	}

	sess, err := p.repo.Begin(batch.ID, fmt.Sprintf("async import %s: %s", schema.Type, batch.FileName), batch.UserID)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	out := &Outcome{BatchID: batch.ID}
	processed := 0
	items := plan.Diff.Items
	for i, c := range chunks(len(items), p.opt.ChunkSize) {
		changes := make([]store.Change, 0, c[1]-c[0])
		for _, it := range items[c[0]:c[1]] {
			if it.Status == reconcile.StatusUnchanged {
				out.Skipped++
				continue
			}
			ch := store.Change{Values: it.After}
			if it.Before != nil {
				ch.Match = keyColumns(schema, it.Before)
			}
			changes = append(changes, ch)
		}
		created, updated, err := p.repo.UpsertChunk(ctx, sess, schema, changes)
		if err != nil {
			log.Error().Err(err).Int("chunk", i+1).Msg("upsert chunk failed")
			return nil, err
		}
		out.Created += created
		out.Updated += updated
		processed = c[1]
		if err := p.repo.ReportProgress(ctx, batch.ID, processed); err != nil {
			return nil, err
		}
	}

	if err := p.repo.TransitionBatch(ctx, batch.ID, db.BatchCompleted, map[string]any{
		"processed_lines": processed,
		"created_count":   out.Created,
		"updated_count":   out.Updated,
		"skipped_count":   out.Skipped,
	}); err != nil {
		return nil, err
	}
	out.Status = db.BatchCompleted
	log.Info().Int("created", out.Created).Int("updated", out.Updated).Int("skipped", out.Skipped).Msg("async import completed")
	return out, nil
}

func keyColumns(schema *dataset.Schema, rec dataset.Record) dataset.Record {
	out := make(dataset.Record, len(schema.KeyColumns))
	for _, c := range schema.KeyColumns {
		out[c] = rec[c]
	}
	return out
}

func jsonCounts(c reconcile.Counts) (datatypes.JSON, error) {
	b, err := json.Marshal(map[string]any{"counts": c})
	return datatypes.JSON(b), err
}

// IsValidation mówi, czy zlecenie odrzucono przez błędy walidacji (bez ponawiania).
func IsValidation(err error) bool {
	var e *apperr.Error
	return errors.As(err, &e) && e.Kind == apperr.KindValidation
}
