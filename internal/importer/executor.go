package importer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/db"
	"github.com/bartek5186/pricebridge/internal/reconcile"
	"github.com/bartek5186/pricebridge/internal/sheet"
)

// BulkRule to jedna decyzja dla wszystkich pozycji o danych statusach.
type BulkRule struct {
	Statuses []reconcile.Status `json:"statuses"`
	Action   reconcile.Action   `json:"action"`
}

// Request opisuje jeden import pliku.
type Request struct {
	Dataset     string
	FileName    string
	Content     []byte
	Mapping     map[string]string
	Resolutions reconcile.Resolutions
	Bulk        *BulkRule
	UserID      string
	TemplateID  *string
}

type Result struct {
	BatchID  string `json:"batch_id"`
	Created  int    `json:"created"`
	Updated  int    `json:"updated"`
	Skipped  int    `json:"skipped"`
	Invalid  int    `json:"invalid"`
	Deferred bool   `json:"deferred"`
}

// Executor wykonuje import: od razu (LocalExecutor) albo w tle (RemoteExecutor).
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

func fileSHA256(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func readTable(req Request) (*dataset.Schema, *sheet.Table, error) {
	schema, err := dataset.MustLookup(req.Dataset)
	if err != nil {
		return nil, nil, apperr.NotFound(err.Error())
	}
	table, err := sheet.Read(req.FileName, bytes.NewReader(req.Content))
	if err != nil {
		return nil, nil, apperr.BadRequest("cannot read file "+req.FileName, err)
	}
	return schema, table, nil
}

// LocalExecutor: plan + natychmiastowy zapis w procesie wywołującym.
type LocalExecutor struct {
	planner *Planner
	repo    Repository
	opt     Options
	log     zerolog.Logger
}

func NewLocalExecutor(planner *Planner, repo Repository, opt Options, log zerolog.Logger) *LocalExecutor {
	return &LocalExecutor{
		planner: planner,
		repo:    repo,
		opt:     opt.withDefaults(),
		log:     log.With().Str("component", "apply").Logger(),
	}
}

func (e *LocalExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	schema, table, err := readTable(req)
	if err != nil {
		return nil, err
	}
	plan, err := e.planner.Prepare(ctx, schema, req.FileName, table, req.Mapping)
	if err != nil {
		return nil, err
	}

	res := req.Resolutions
	if res == nil {
		res = reconcile.Resolutions{}
	}
	if err := res.Validate(); err != nil {
		return nil, apperr.BadRequest("invalid resolutions", err)
	}
	if req.Bulk != nil {
		res.BulkResolve(plan.Diff.Items, req.Bulk.Statuses, req.Bulk.Action)
	}
	return e.ApplyDirect(ctx, plan, res, ApplyMeta{UserID: req.UserID, TemplateID: req.TemplateID, SHA256: fileSHA256(req.Content)})
}

type ApplyMeta struct {
	UserID     string
	TemplateID *string
	SHA256     string
}

// ApplyDirect zapisuje rozstrzygnięty diff: inserty chunkami, update'y wiersz po wierszu.
// Błąd chunka przerywa pętlę; wcześniejsze chunki zostają zapisane, batch idzie w failed.
func (e *LocalExecutor) ApplyDirect(ctx context.Context, plan *Plan, res reconcile.Resolutions, meta ApplyMeta) (*Result, error) {
	schema := plan.Schema
	summary, _ := json.Marshal(map[string]any{"counts": plan.Diff.Counts, "invalid": len(plan.Errors)})

	batch := &db.ImportBatch{
		FileName:    plan.FileName,
		UserID:      meta.UserID,
		DatasetType: schema.Type,
		TotalLines:  plan.TotalLines,
		DiffSummary: datatypes.JSON(summary),
		TemplateID:  meta.TemplateID,
		SHA256:      meta.SHA256,
	}
	if err := e.repo.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}
	log := e.log.With().Str("batch_id", batch.ID).Str("dataset", schema.Type).Logger()

	sess, err := e.repo.Begin(batch.ID, fmt.Sprintf("import %s: %s", schema.Type, plan.FileName), meta.UserID)
	if err != nil {
		e.repo.FailBatch(ctx, batch.ID, err)
		return nil, err
	}
	defer sess.Close()

	fail := func(err error) (*Result, error) {
		e.repo.FailBatch(ctx, batch.ID, err)
		return nil, err
	}

	if err := e.repo.TransitionBatch(ctx, batch.ID, db.BatchProcessing, nil); err != nil {
		return fail(err)
	}

	part := res.Split(plan.Diff.Items, schema)
	out := &Result{BatchID: batch.ID, Skipped: part.Skipped, Invalid: len(plan.Errors)}
	processed := part.Skipped

	for i, c := range chunks(len(part.Creates), e.opt.ChunkSize) {
		recs := make([]dataset.Record, 0, c[1]-c[0])
		for _, row := range part.Creates[c[0]:c[1]] {
			recs = append(recs, row.Record)
		}
		if err := e.repo.InsertChunk(ctx, sess, schema, recs); err != nil {
			log.Error().Err(err).Int("chunk", i+1).Int("rows", len(recs)).Msg("insert chunk failed")
			return fail(err)
		}
		out.Created += len(recs)
		processed += len(recs)
		if err := e.repo.ReportProgress(ctx, batch.ID, processed); err != nil {
			return fail(err)
		}
		log.Debug().Int("chunk", i+1).Int("created", out.Created).Msg("insert chunk ok")
	}

	for i, u := range part.Updates {
		affected, err := e.repo.UpdateByKey(ctx, sess, schema, u.Match, u.Values)
		if err != nil {
			log.Error().Err(err).Str("key", u.Key).Int("line", u.Line).Msg("update failed")
			return fail(err)
		}
		if affected == 0 {
			// wiersz zniknął między planem a zapisem
			log.Warn().Str("key", u.Key).Int("line", u.Line).Msg("row to update no longer exists, skipped")
			out.Skipped++
		} else {
			out.Updated++
		}
		processed++
		if (i+1)%e.opt.ChunkSize == 0 || i == len(part.Updates)-1 {
			if err := e.repo.ReportProgress(ctx, batch.ID, processed); err != nil {
				return fail(err)
			}
		}
	}

	if err := e.repo.TransitionBatch(ctx, batch.ID, db.BatchCompleted, map[string]any{
		"processed_lines": processed,
		"created_count":   out.Created,
		"updated_count":   out.Updated,
		"skipped_count":   out.Skipped,
	}); err != nil {
		return fail(err)
	}

	log.Info().
		Int("created", out.Created).
		Int("updated", out.Updated).
		Int("skipped", out.Skipped).
		Int("invalid", out.Invalid).
		Msg("import applied")
	return out, nil
}
