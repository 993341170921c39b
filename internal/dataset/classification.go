package dataset

import (
	"strings"
)

const TypeClassification = "classification"

// ClassificationSchema: klasyfikacja produktów CIR (mega / famille / sous-famille).
var ClassificationSchema = &Schema{
	Type:  TypeClassification,
	Table: "cir_classifications",
	Fields: []Field{
		{Name: "fsmega_code", Kind: KindInt, Required: true, Rules: "min=0,max=99999",
			Synonyms: []string{"fsmega_code", "code fsmega", "fsmega", "code méga"}},
		{Name: "fsmega_designation", Kind: KindText, Required: true, Rules: "max=255",
			Synonyms: []string{"fsmega_designation", "désignation fsmega", "libellé fsmega", "libellé méga"}},
		{Name: "fsfam_code", Kind: KindInt, Required: true, Rules: "min=0,max=99999",
			Synonyms: []string{"fsfam_code", "code fsfam", "fsfam", "code famille"}},
		{Name: "fsfam_designation", Kind: KindText, Required: true, Rules: "max=255",
			Synonyms: []string{"fsfam_designation", "désignation fsfam", "libellé fsfam", "libellé famille"}},
		{Name: "fssfa_code", Kind: KindInt, Required: true, Rules: "min=0,max=99999",
			Synonyms: []string{"fssfa_code", "code fssfa", "fssfa", "code sous famille"}},
		{Name: "fssfa_designation", Kind: KindText, Required: true, Rules: "max=255",
			Synonyms: []string{"fssfa_designation", "désignation fssfa", "libellé fssfa", "libellé sous famille"}},
		{Name: "combined_code", Kind: KindText, Rules: "max=40",
			Synonyms: []string{"combined_code", "code combiné", "code cir"}},
		{Name: "combined_designation", Kind: KindText, Rules: "max=500",
			Synonyms: []string{"combined_designation", "désignation combinée", "libellé combiné", "désignation cir"}},
	},
	KeyColumns: []string{"combined_code"},
	Generated:  []string{"id", "created_at", "updated_at"},
	NaturalKey: func(r Record) string { return strings.TrimSpace(r.Text("combined_code")) },
	Derive:     deriveCombinedCode,
}

// deriveCombinedCode: brak combined_code -> trzy kody złączone spacją.
func deriveCombinedCode(r Record) {
	if strings.TrimSpace(r.Text("combined_code")) != "" {
		return
	}
	r["combined_code"] = strings.Join([]string{
		r.Text("fsmega_code"),
		r.Text("fsfam_code"),
		r.Text("fssfa_code"),
	}, " ")
}

func init() {
	Register(ClassificationSchema)
}
