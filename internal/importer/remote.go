package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/blob"
	"github.com/bartek5186/pricebridge/internal/db"
	"github.com/bartek5186/pricebridge/internal/queue"
)

// RemoteExecutor: plik do blob store, batch z kluczem pliku i mapowaniem
// w metadanych, zlecenie do kolejki. Nie czeka na wynik.
type RemoteExecutor struct {
	repo     Repository
	blobs    blob.Store
	dispatch queue.Dispatcher
	prefix   string
	log      zerolog.Logger
}

func NewRemoteExecutor(repo Repository, blobs blob.Store, dispatch queue.Dispatcher, prefix string, log zerolog.Logger) *RemoteExecutor {
	return &RemoteExecutor{
		repo:     repo,
		blobs:    blobs,
		dispatch: dispatch,
		prefix:   prefix,
		log:      log.With().Str("component", "apply-async").Logger(),
	}
}

// BatchMetadata to metadane batcha ścieżki odroczonej.
type BatchMetadata struct {
	FilePath string            `json:"file_path"`
	Mapping  map[string]string `json:"mapping"`
}

func (e *RemoteExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	schema, table, err := readTable(req)
	if err != nil {
		return nil, err
	}
	// to samo mapowanie co w ścieżce natychmiastowej: podane albo zgadnięte
	mapping, err := ResolveMapping(schema, table.Headers, req.Mapping)
	if err != nil {
		return nil, err
	}
	if req.UserID == "" {
		return nil, apperr.Integrity("import batch requires a user id")
	}

	batchID := uuid.NewString()
	key := blob.Key(e.prefix, batchID, req.FileName)
	ct := mime.TypeByExtension(filepath.Ext(req.FileName))
	if err := e.blobs.Put(ctx, key, bytes.NewReader(req.Content), int64(len(req.Content)), ct); err != nil {
		return nil, apperr.Persistence("upload import file", err)
	}

	meta, _ := json.Marshal(BatchMetadata{FilePath: key, Mapping: mapping})
	batch := &db.ImportBatch{
		ID:          batchID,
		FileName:    req.FileName,
		UserID:      req.UserID,
		DatasetType: schema.Type,
		TemplateID:  req.TemplateID,
		Metadata:    datatypes.JSON(meta),
		SHA256:      fileSHA256(req.Content),
	}
	if err := e.repo.CreateBatch(ctx, batch); err != nil {
		return nil, err
	}

	msg := queue.Message{BatchID: batchID, DatasetType: schema.Type, FilePath: key, Mapping: mapping}
	if err := e.dispatch.Dispatch(ctx, msg); err != nil {
		e.repo.FailBatch(ctx, batchID, err)
		return nil, apperr.Internal(err)
	}

	e.log.Info().Str("batch_id", batchID).Str("dataset", schema.Type).Str("file_path", key).Msg("import dispatched")
	return &Result{BatchID: batchID, Deferred: true}, nil
}
