package importer

import (
	"context"

	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/db"
	"github.com/bartek5186/pricebridge/internal/store"
)

// Repository to operacje warstwy danych potrzebne importowi (*store.Store).
type Repository interface {
	FetchExisting(ctx context.Context, schema *dataset.Schema, recs []dataset.Record) (map[string]dataset.Record, error)

	Begin(batchID, reason, userID string) (*store.Session, error)
	InsertChunk(ctx context.Context, sess *store.Session, schema *dataset.Schema, recs []dataset.Record) error
	UpdateByKey(ctx context.Context, sess *store.Session, schema *dataset.Schema, match, values dataset.Record) (int64, error)
	UpsertChunk(ctx context.Context, sess *store.Session, schema *dataset.Schema, changes []store.Change) (int, int, error)
	ReplaceAll(ctx context.Context, sess *store.Session, schema *dataset.Schema, recs []dataset.Record, chunkSize int) error

	CreateBatch(ctx context.Context, b *db.ImportBatch) error
	ClaimBatch(ctx context.Context, id string) error
	TransitionBatch(ctx context.Context, id, to string, fields map[string]any) error
	ReportProgress(ctx context.Context, id string, processed int) error
	FailBatch(ctx context.Context, id string, cause error)
	GetBatch(ctx context.Context, id string) (*db.ImportBatch, error)
	FindCompletedBySHA(ctx context.Context, datasetType, sha string) (*db.ImportBatch, error)
}

var _ Repository = (*store.Store)(nil)

type Options struct {
	ChunkSize         int // 500
	MaxReportedErrors int // 10
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 500
	}
	if o.MaxReportedErrors <= 0 {
		o.MaxReportedErrors = 10
	}
	return o
}

// chunks dzieli n elementów na przedziały [start,end) po size.
func chunks(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
