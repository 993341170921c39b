package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/blob"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/db"
	"github.com/bartek5186/pricebridge/internal/queue"
	"github.com/bartek5186/pricebridge/internal/store"
)

type captureDispatcher struct {
	msgs []queue.Message
	err  error
}

func (c *captureDispatcher) Dispatch(_ context.Context, m queue.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, m)
	return nil
}

var csvMapping = map[string]string{"marque": "marque", "cat_fab": "cat_fab", "segment": "segment", "fsfam": "fsfam"}

type asyncEnv struct {
	st    *store.Store
	blobs *blob.LocalStore
	disp  *captureDispatcher
	exec  *RemoteExecutor
	proc  *Processor
}

func newAsyncEnv(t *testing.T) *asyncEnv {
	t.Helper()
	st := newStore(t)
	blobs, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	disp := &captureDispatcher{}
	return &asyncEnv{
		st:    st,
		blobs: blobs,
		disp:  disp,
		exec:  NewRemoteExecutor(st, blobs, disp, "imports", zerolog.Nop()),
		proc:  NewProcessor(NewPlanner(st, zerolog.Nop()), st, blobs, Options{}, zerolog.Nop()),
	}
}

func (e *asyncEnv) submit(t *testing.T, content []byte) queue.Message {
	t.Helper()
	res, err := e.exec.Execute(context.Background(), Request{
		Dataset: dataset.TypeMapping, FileName: "prices.csv", Content: content, Mapping: csvMapping, UserID: "u1",
	})
	require.NoError(t, err)
	require.True(t, res.Deferred)
	require.NotEmpty(t, e.disp.msgs)
	m := e.disp.msgs[len(e.disp.msgs)-1]
	require.Equal(t, res.BatchID, m.BatchID)
	return m
}

func TestRemoteExecutor_StoresFileAndDispatches(t *testing.T) {
	env := newAsyncEnv(t)
	m := env.submit(t, []byte("marque,cat_fab,segment,fsfam\nSKF,brg,Auto,5\n"))

	assert.Equal(t, "imports/"+m.BatchID+"/prices.csv", m.FilePath)
	assert.Equal(t, csvMapping, m.Mapping)

	b, err := env.st.GetBatch(context.Background(), m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, db.BatchPending, b.Status)
	assert.Contains(t, string(b.Metadata), `"file_path":"imports/`+m.BatchID+`/prices.csv"`)

	rc, err := env.blobs.Get(context.Background(), m.FilePath)
	require.NoError(t, err)
	defer rc.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(rc)
	assert.Contains(t, buf.String(), "SKF,brg")
}

func TestRemoteExecutor_DispatchFailureFailsBatch(t *testing.T) {
	env := newAsyncEnv(t)
	env.disp.err = errors.New("queue unavailable")

	_, err := env.exec.Execute(context.Background(), Request{
		Dataset: dataset.TypeMapping, FileName: "prices.csv", Content: []byte("marque,cat_fab,segment,fsfam\nA,1,S,2\n"),
		Mapping: csvMapping, UserID: "u1",
	})
	require.Error(t, err)

	batches, err := env.st.ListBatches(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, db.BatchFailed, batches[0].Status)
}

func TestRemoteExecutor_RequiresMappingAndUser(t *testing.T) {
	env := newAsyncEnv(t)
	ctx := context.Background()

	_, err := env.exec.Execute(ctx, Request{Dataset: dataset.TypeMapping, FileName: "a.csv", Content: []byte("x"), UserID: "u1",
		Mapping: map[string]string{"marque": "marque"}})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = env.exec.Execute(ctx, Request{Dataset: dataset.TypeMapping, FileName: "a.csv", Content: []byte("x"), UserID: "u1",
		Mapping: csvMapping})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), "mapped columns missing from file")

	_, err = env.exec.Execute(ctx, Request{Dataset: dataset.TypeMapping, FileName: "a.csv",
		Content: []byte("marque,cat_fab,segment,fsfam\nA,1,S,2\n"), Mapping: csvMapping})
	assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
	assert.Empty(t, env.disp.msgs)
}

func TestRemoteExecutor_GuessesMappingFromHeaders(t *testing.T) {
	env := newAsyncEnv(t)
	ctx := context.Background()

	res, err := env.exec.Execute(ctx, Request{
		Dataset: dataset.TypeMapping, FileName: "prices.csv", UserID: "u1",
		Content: []byte("Marque;Catégorie Fabricant;Segment\nSKF;brg;Auto\n"),
	})
	require.NoError(t, err)
	require.Len(t, env.disp.msgs, 1)
	m := env.disp.msgs[0]
	assert.Equal(t, "Marque", m.Mapping["marque"])
	assert.Equal(t, "Catégorie Fabricant", m.Mapping["cat_fab"])
	assert.Equal(t, "Segment", m.Mapping["segment"])

	out, err := env.proc.Run(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, res.BatchID, out.BatchID)
	assert.Equal(t, db.BatchCompleted, out.Status)
	assert.Equal(t, 1, out.Created)
}

func TestProcessor_UpsertsChangedRows(t *testing.T) {
	env := newAsyncEnv(t)
	ctx := context.Background()
	seedMapping(t, env.st,
		dataset.Record{"marque": "skf", "cat_fab": "BRG", "segment": "Old", "strategiq": int64(0), "fsmega": int64(1), "fsfam": int64(99), "fssfa": int64(99)},
		dataset.Record{"marque": "Bosch", "cat_fab": "X1", "segment": "Eco", "strategiq": int64(0), "fsmega": int64(1), "fsfam": int64(7), "fssfa": int64(99)},
	)

	m := env.submit(t, []byte("marque,cat_fab,segment,fsfam\nSKF,brg,New,99\nBosch,X1,Eco,7\nFag,Z9,Moto,3\n"))
	out, err := env.proc.Run(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, db.BatchCompleted, out.Status)
	assert.Equal(t, 1, out.Created)
	assert.Equal(t, 1, out.Updated)
	assert.Equal(t, 1, out.Skipped)

	b, err := env.st.GetBatch(ctx, m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, db.BatchCompleted, b.Status)
	assert.Equal(t, 3, b.TotalLines)
	assert.Equal(t, 3, b.ProcessedLines)
	assert.Equal(t, 1, b.CreatedCount)
	assert.Equal(t, 1, b.UpdatedCount)
	assert.Equal(t, 1, b.SkippedCount)
	assert.NotNil(t, b.CompletedAt)

	var row db.BrandMapping
	require.NoError(t, env.st.DB().Where("cat_fab = ?", "BRG").First(&row).Error)
	assert.Equal(t, "SKF", row.Marque)
	assert.Equal(t, "New", row.Segment)
	assert.Equal(t, int64(3), countRows(t, env.st, "brand_category_mappings"))

	logs, err := env.st.ChangeLogs(ctx, m.BatchID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	// ponowne dostarczenie tego samego zlecenia nic nie zmienia
	again, err := env.proc.Run(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, db.BatchCompleted, again.Status)
	assert.Zero(t, again.Created)
	logs, err = env.st.ChangeLogs(ctx, m.BatchID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestProcessor_AllOrNothingValidation(t *testing.T) {
	env := newAsyncEnv(t)
	ctx := context.Background()

	var b bytes.Buffer
	b.WriteString("marque,cat_fab,segment,fsfam\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "Brand%d,c%d,Auto,1\n", i, i)
	}
	for i := 0; i < 12; i++ {
		fmt.Fprintf(&b, "Bad%d,c%d,Auto,abc\n", i, i)
	}
	m := env.submit(t, b.Bytes())

	out, err := env.proc.Run(ctx, m)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	require.NotNil(t, out)
	assert.Len(t, out.Errors, 10)
	assert.Equal(t, 12, out.ErrorsTotal)
	assert.Equal(t, 22, out.Errors[0].Line)
	assert.Equal(t, "fsfam", out.Errors[0].Field)

	batch, err := env.st.GetBatch(ctx, m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, db.BatchFailed, batch.Status)
	assert.Contains(t, batch.LastError, "12 rows failed validation")
	assert.Equal(t, int64(0), countRows(t, env.st, "brand_category_mappings"))
}

func TestProcessor_BatchWithoutUserIsIntegrityError(t *testing.T) {
	env := newAsyncEnv(t)
	ctx := context.Background()
	require.NoError(t, env.st.DB().Create(&db.ImportBatch{ID: "orphan", DatasetType: dataset.TypeMapping, Status: db.BatchPending}).Error)

	_, err := env.proc.Run(ctx, queue.Message{BatchID: "orphan", DatasetType: dataset.TypeMapping, FilePath: "imports/orphan/a.csv", Mapping: csvMapping})
	assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))

	b, err := env.st.GetBatch(ctx, "orphan")
	require.NoError(t, err)
	assert.Equal(t, db.BatchFailed, b.Status)
}

func TestProcessor_MissingFileFailsBatch(t *testing.T) {
	env := newAsyncEnv(t)
	ctx := context.Background()
	m := env.submit(t, []byte("marque,cat_fab,segment,fsfam\nA,1,S,2\n"))
	m.FilePath = "imports/" + m.BatchID + "/gone.csv"

	err := env.proc.Process(ctx, m)
	assert.Equal(t, apperr.KindPersistence, apperr.KindOf(err))
	assert.True(t, errors.Is(err, blob.ErrNotFound))

	b, err := env.st.GetBatch(ctx, m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, db.BatchFailed, b.Status)
}

func TestProcessor_UnknownBatch(t *testing.T) {
	env := newAsyncEnv(t)
	_, err := env.proc.Run(context.Background(), queue.Message{BatchID: "nope", DatasetType: dataset.TypeMapping, FilePath: "x.csv", Mapping: csvMapping})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestProcessor_SkipsBatchClaimedByAnotherWorker(t *testing.T) {
	env := newAsyncEnv(t)
	ctx := context.Background()
	m := env.submit(t, []byte("marque,cat_fab,segment,fsfam\nA,1,S,2\nB,2,S,3\n"))

	// inny worker już przejął ten batch
	require.NoError(t, env.st.ClaimBatch(ctx, m.BatchID))

	out, err := env.proc.Run(ctx, m)
	require.NoError(t, err)
	assert.Equal(t, db.BatchProcessing, out.Status)
	assert.Zero(t, out.Created)

	assert.Equal(t, int64(0), countRows(t, env.st, "brand_category_mappings"))
	logs, err := env.st.ChangeLogs(ctx, m.BatchID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	b, err := env.st.GetBatch(ctx, m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, db.BatchProcessing, b.Status)
	assert.Empty(t, b.LastError)
}

func TestProcessor_InterruptedJobFailsBatch(t *testing.T) {
	env := newAsyncEnv(t)
	m := env.submit(t, []byte("marque,cat_fab,segment,fsfam\nA,1,S,2\n"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.proc.Run(ctx, m)
	require.Error(t, err)

	b, err := env.st.GetBatch(context.Background(), m.BatchID)
	require.NoError(t, err)
	assert.Equal(t, db.BatchFailed, b.Status)
	assert.Contains(t, b.LastError, "interrupted")
}
