package dataset

import "strings"

const TypeMapping = "mapping"

// MappingSchema: mapowanie marka/kategoria fabrykanta -> segment cenowy.
var MappingSchema = &Schema{
	Type:  TypeMapping,
	Table: "brand_category_mappings",
	Fields: []Field{
		{Name: "segment", Kind: KindText, Required: true, Rules: "max=120",
			Synonyms: []string{"segment", "segment tarifaire", "segment prix", "seg"}},
		{Name: "marque", Kind: KindText, Required: true, Rules: "max=120",
			Synonyms: []string{"marque", "brand", "fabricant", "nom marque"}},
		{Name: "cat_fab", Kind: KindUpper, Required: true, Rules: "max=60",
			Synonyms: []string{"cat_fab", "cat fab", "catégorie fabricant", "code catégorie", "categ fab"}},
		{Name: "cat_fab_l", Kind: KindText, Rules: "max=255",
			Synonyms: []string{"cat_fab_l", "libellé catégorie", "libellé cat fab", "désignation catégorie"}},
		{Name: "strategiq", Kind: KindFlag, Default: ptr(0),
			Synonyms: []string{"strategiq", "stratégique", "strategique", "strat"}},
		{Name: "fsmega", Kind: KindInt, Default: ptr(1), Rules: "min=1,max=99",
			Synonyms: []string{"fsmega", "fs mega", "famille méga"}},
		{Name: "fsfam", Kind: KindInt, Default: ptr(99), Rules: "min=1,max=99",
			Synonyms: []string{"fsfam", "fs fam", "famille"}},
		{Name: "fssfa", Kind: KindInt, Default: ptr(99), Rules: "min=1,max=99",
			Synonyms: []string{"fssfa", "fs sfa", "sous famille", "sous-famille"}},
		{Name: "codif_fair", Kind: KindText, Rules: "max=60",
			Synonyms: []string{"codif_fair", "codif fair", "codification fair"}},
	},
	KeyColumns:   []string{"marque", "cat_fab"},
	Generated:    []string{"id", "created_at", "updated_at"},
	Sensitive:    []string{"segment", "marque", "cat_fab", "strategiq", "fsmega", "fsfam", "fssfa"},
	NonSensitive: []string{"cat_fab_l", "codif_fair"},
	NaturalKey:   MappingKey,
}

// MappingKey: lower(marque) + "|" + upper(cat_fab).
func MappingKey(r Record) string {
	marque := strings.ToLower(strings.TrimSpace(r.Text("marque")))
	catFab := strings.ToUpper(strings.TrimSpace(r.Text("cat_fab")))
	if marque == "" || catFab == "" {
		return ""
	}
	return marque + "|" + catFab
}

func init() {
	Register(MappingSchema)
}
