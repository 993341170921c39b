package dataset

import "strings"

const TypeSegment = "segment"

// SegmentSchema: słownik segmentów CIR, ładowany tylko w trybie "zastąp wszystko".
var SegmentSchema = &Schema{
	Type:  TypeSegment,
	Table: "cir_segments",
	Fields: []Field{
		{Name: "code", Kind: KindUpper, Required: true, Rules: "max=40",
			Synonyms: []string{"code", "code segment", "segment"}},
		{Name: "designation", Kind: KindText, Required: true, Rules: "max=255",
			Synonyms: []string{"designation", "désignation", "libellé", "label"}},
		{Name: "sort_order", Kind: KindInt, Default: ptr(0), Rules: "min=0,max=9999",
			Synonyms: []string{"sort_order", "ordre", "rang"}},
	},
	KeyColumns: []string{"code"},
	Generated:  []string{"id", "created_at", "updated_at"},
	NaturalKey: func(r Record) string { return strings.ToUpper(strings.TrimSpace(r.Text("code"))) },
}

func init() {
	Register(SegmentSchema)
}
