package importer

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pricebridge/internal/apperr"
	"github.com/bartek5186/pricebridge/internal/dataset"
	"github.com/bartek5186/pricebridge/internal/db"
	"github.com/bartek5186/pricebridge/internal/sheet"
)

func TestReplacer_ReplacesWholeTable(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	r := NewReplacer(st, Options{}, zerolog.Nop())

	_, err := r.ReplaceAll(ctx, dataset.SegmentSchema, []map[string]any{
		{"code": "a", "designation": "Auto"},
		{"code": "b", "designation": "Bike", "sort_order": 2},
	}, "admin", "segments.json")
	require.NoError(t, err)

	res, err := r.ReplaceAll(ctx, dataset.SegmentSchema, []map[string]any{
		{"code": "c", "designation": "Cargo", "sort_order": "3"},
	}, "admin", "segments.json")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	var segs []db.CIRSegment
	require.NoError(t, st.DB().Find(&segs).Error)
	require.Len(t, segs, 1)
	assert.Equal(t, "C", segs[0].Code)
	assert.Equal(t, 3, segs[0].SortOrder)

	b, err := st.GetBatch(ctx, res.BatchID)
	require.NoError(t, err)
	assert.Equal(t, db.BatchCompleted, b.Status)
	assert.Equal(t, 1, b.CreatedCount)
}

func TestReplacer_RejectsWithoutWriting(t *testing.T) {
	st := newStore(t)
	ctx := context.Background()
	r := NewReplacer(st, Options{}, zerolog.Nop())

	_, err := r.ReplaceAll(ctx, dataset.SegmentSchema, []map[string]any{
		{"code": "a", "designation": "Auto", "colour": "red"},
		{"code": "b", "designation": "Bike"},
		{"code": "B", "designation": "Bike again"},
	}, "admin", "segments.json")
	require.Error(t, err)
	ae := apperr.As(err)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	details := ae.Details.(map[string]any)
	assert.Equal(t, 2, details["total"])
	errs := details["errors"].(dataset.ValidationErrors)
	assert.Equal(t, "colour", errs[0].Field)
	assert.Equal(t, "unknown field", errs[0].Message)
	assert.Equal(t, dataset.KeyField, errs[1].Field)
	assert.Equal(t, "duplicate key (first seen on line 3)", errs[1].Message)

	batches, err := st.ListBatches(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, batches)

	_, err = r.ReplaceAll(ctx, dataset.SegmentSchema, nil, "admin", "x")
	assert.Equal(t, apperr.KindBadRequest, apperr.KindOf(err))
	_, err = r.ReplaceAll(ctx, dataset.SegmentSchema, []map[string]any{{"code": "a", "designation": "A"}}, "", "x")
	assert.Equal(t, apperr.KindIntegrity, apperr.KindOf(err))
}

func TestValidateRows_KeepsFirstDuplicate(t *testing.T) {
	rows := []sheet.Row{
		{Line: 2, Values: map[string]any{"marque": "SKF", "cat_fab": "brg", "segment": "A"}},
		{Line: 3, Values: map[string]any{"marque": "skf", "cat_fab": "BRG", "segment": "B"}},
		{Line: 4, Values: map[string]any{"marque": "", "cat_fab": "X", "segment": "C"}},
	}
	valid, errs := ValidateRows(dataset.MappingSchema, rows, dataset.IdentityMapping(dataset.MappingSchema))
	require.Len(t, valid, 1)
	assert.Equal(t, "A", valid[0].Record["segment"])
	require.Len(t, errs, 2)
	assert.Equal(t, 3, errs[0].Line)
	assert.Equal(t, "duplicate key (first seen on line 2)", errs[0].Message)
	assert.Equal(t, 4, errs[1].Line)
	assert.Equal(t, "marque", errs[1].Field)
}

func TestResolveMapping(t *testing.T) {
	headers := []string{"Marque", "Cat. Fab", "Segment tarifaire"}

	m, err := ResolveMapping(dataset.MappingSchema, headers, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"marque": "Marque", "cat_fab": "Cat. Fab", "segment": "Segment tarifaire"}, m)

	_, err = ResolveMapping(dataset.MappingSchema, headers, map[string]string{"marque": "Marque", "cat_fab": "Nope", "segment": "Segment tarifaire"})
	require.Error(t, err)
	ae := apperr.As(err)
	assert.Equal(t, apperr.KindValidation, ae.Kind)
	errs := ae.Details.(dataset.ValidationErrors)
	require.Len(t, errs, 1)
	assert.Equal(t, "mapped column not found in file", errs[0].Message)
}

func TestChunks(t *testing.T) {
	assert.Nil(t, chunks(0, 500))
	assert.Equal(t, [][2]int{{0, 500}, {500, 1000}, {1000, 1001}}, chunks(1001, 500))
}
