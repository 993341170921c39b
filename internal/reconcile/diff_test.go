package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bartek5186/pricebridge/internal/dataset"
)

func mappingRow(t *testing.T, line int, raw map[string]any) Row {
	t.Helper()
	rec, errs := dataset.MappingSchema.Validate(raw, dataset.IdentityMapping(dataset.MappingSchema), line)
	require.Empty(t, errs)
	return Row{Line: line, Key: dataset.MappingKey(rec), Record: rec}
}

func storedMapping(overrides map[string]any) dataset.Record {
	rec := dataset.Record{
		"id": int64(7), "marque": "skf", "cat_fab": "BRG", "cat_fab_l": nil,
		"segment": "Old", "strategiq": int32(0), "fsmega": int32(1), "fsfam": int32(99),
		"fssfa": int32(99), "codif_fair": nil,
	}
	for k, v := range overrides {
		rec[k] = v
	}
	return rec
}

func TestCompute_SensitiveChangeIsConflict(t *testing.T) {
	row := mappingRow(t, 2, map[string]any{"marque": "SKF", "cat_fab": "brg", "segment": "New"})
	existing := map[string]dataset.Record{"skf|BRG": storedMapping(nil)}

	d := Compute([]Row{row}, existing, dataset.MappingSchema)

	require.Len(t, d.Items, 1)
	it := d.Items[0]
	assert.Equal(t, "skf|BRG", it.Key)
	assert.Equal(t, StatusConflict, it.Status)
	assert.True(t, it.SensitiveChanged)
	assert.ElementsMatch(t, []string{"segment", "marque"}, it.ChangedFields)
	assert.Equal(t, Counts{Conflict: 1}, d.Counts)
}

func TestCompute_Classification(t *testing.T) {
	cases := []struct {
		name     string
		existing dataset.Record
		want     Status
		changed  []string
	}{
		{"missing row creates", nil, StatusCreate, nil},
		{"same values with type drift", storedMapping(map[string]any{"marque": "SKF", "segment": "Auto"}), StatusUnchanged, nil},
		{"only non-sensitive differs", storedMapping(map[string]any{"marque": "SKF", "segment": "Auto", "cat_fab_l": "Roulements"}), StatusUpdate, []string{"cat_fab_l"}},
		{"sensitive and non-sensitive differ", storedMapping(map[string]any{"marque": "SKF", "segment": "Auto", "fsfam": int32(4), "codif_fair": "X"}), StatusConflict, []string{"fsfam", "codif_fair"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			row := mappingRow(t, 2, map[string]any{"marque": "SKF", "cat_fab": "brg", "segment": "Auto", "cat_fab_l": "", "codif_fair": ""})
			existing := map[string]dataset.Record{}
			if c.existing != nil {
				existing[row.Key] = c.existing
			}

			d := Compute([]Row{row}, existing, dataset.MappingSchema)

			require.Len(t, d.Items, 1)
			assert.Equal(t, c.want, d.Items[0].Status)
			assert.ElementsMatch(t, c.changed, d.Items[0].ChangedFields)
		})
	}
}

func TestCompute_ClassificationHasNoConflicts(t *testing.T) {
	raw := map[string]any{
		"fsmega_code": "10", "fsmega_designation": "Roulements",
		"fsfam_code": "20", "fsfam_designation": "Billes",
		"fssfa_code": "30", "fssfa_designation": "Étanches",
	}
	rec, errs := dataset.ClassificationSchema.Validate(raw, dataset.IdentityMapping(dataset.ClassificationSchema), 2)
	require.Empty(t, errs)

	stored := rec.Clone()
	stored["fsmega_code"] = int64(11)
	stored["fsfam_designation"] = "Autre"

	d := Compute([]Row{{Line: 2, Key: "10 20 30", Record: rec}},
		map[string]dataset.Record{"10 20 30": stored}, dataset.ClassificationSchema)

	assert.Equal(t, StatusUpdate, d.Items[0].Status)
	assert.Equal(t, []string{"fsmega_code", "fsfam_designation"}, d.Items[0].ChangedFields)
	assert.False(t, d.Items[0].SensitiveChanged)
}

func TestCompute_KeepsInputOrderAndCounts(t *testing.T) {
	rows := []Row{
		mappingRow(t, 2, map[string]any{"marque": "A", "cat_fab": "1", "segment": "S"}),
		mappingRow(t, 3, map[string]any{"marque": "B", "cat_fab": "2", "segment": "S"}),
		mappingRow(t, 4, map[string]any{"marque": "C", "cat_fab": "3", "segment": "S"}),
	}
	existing := map[string]dataset.Record{
		"b|2": rows[1].Record.Clone(),
		"c|3": storedMapping(map[string]any{"marque": "C", "cat_fab": "3", "segment": "T"}),
	}

	d := Compute(rows, existing, dataset.MappingSchema)

	require.Len(t, d.Items, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{d.Items[0].Line, d.Items[1].Line, d.Items[2].Line})
	assert.Equal(t, Counts{Unchanged: 1, Create: 1, Conflict: 1}, d.Counts)
	assert.Equal(t, 3, d.Counts.Total())
	assert.Len(t, d.Filter(StatusCreate, StatusConflict), 2)
}

func TestCompute_IgnoresColumnsMissingFromFile(t *testing.T) {
	row := mappingRow(t, 2, map[string]any{"marque": "skf", "cat_fab": "BRG", "segment": "Old"})
	require.NotContains(t, row.Record, "cat_fab_l")

	existing := map[string]dataset.Record{"skf|BRG": storedMapping(map[string]any{"cat_fab_l": "Roulements"})}
	d := Compute([]Row{row}, existing, dataset.MappingSchema)

	assert.Equal(t, StatusUnchanged, d.Items[0].Status)
}

func TestKeys_Dedup(t *testing.T) {
	rows := []Row{{Key: "a"}, {Key: "b"}, {Key: "a"}, {Key: "c"}}
	assert.Equal(t, []string{"a", "b", "c"}, Keys(rows))
}
