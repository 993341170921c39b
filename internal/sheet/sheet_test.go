package sheet

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestRead_CSVSemicolonWithBOMAndQuotes(t *testing.T) {
	data := "\xef\xbb\xbfMarque;Cat Fab;Libellé\r\n" +
		"SKF;brg;\"Roulements; billes\"\r\n" +
		"\r\n" +
		"Bosch;x1;\"dit \"\"pro\"\"\"\r\n"

	tbl, err := Read("mapping.csv", strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"Marque", "Cat Fab", "Libellé"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, 2, tbl.Rows[0].Line)
	assert.Equal(t, "Roulements; billes", tbl.Rows[0].Values["Libellé"])
	assert.Equal(t, 4, tbl.Rows[1].Line)
	assert.Equal(t, `dit "pro"`, tbl.Rows[1].Values["Libellé"])
}

func TestRead_CSVWindows1252(t *testing.T) {
	data := []byte("Cat\xe9gorie,Marque\nA,Caf\xe9\n")

	tbl, err := Read("x.csv", bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"Catégorie", "Marque"}, tbl.Headers)
	assert.Equal(t, "Café", tbl.Rows[0].Values["Marque"])
}

func TestRead_ForcedCharset(t *testing.T) {
	// windows-1250: ł=0xB3, ó=0xF3, ź=0x9F
	data := []byte("nazwa\n\xb3\xf3d\x9f\n")

	tbl, err := ReadWith("x.csv", bytes.NewReader(data), Options{Charset: "cp1250"})
	require.NoError(t, err)

	assert.Equal(t, "łódź", tbl.Rows[0].Values["nazwa"])
}

func TestRead_ShortRowsAndDuplicateHeaders(t *testing.T) {
	tbl, err := Read("x.txt", strings.NewReader("a|b|a\n1\n"))
	require.NoError(t, err)

	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, map[string]any{"a": "1", "b": ""}, tbl.Rows[0].Values)
}

func TestDetectDelimiter(t *testing.T) {
	cases := map[string]rune{
		"a;b;c\n1;2;3\n":            ';',
		"a,b,c\n1,2,3\n":            ',',
		"a\tb\n1\t2\n":              '\t',
		"a|b\n1|2\n":                '|',
		"a;b\n\"1,5\";2\n\"3,1\";4": ';',
		"single\nvalue\n":           ',',
		"":                          ',',
	}
	for in, want := range cases {
		assert.Equal(t, string(want), string(DetectDelimiter([]byte(in))), "input %q", in)
	}
}

func TestRead_XLSXFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Marque", "Cat Fab", "FsFam"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"SKF", "brg", 5}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]any{"Bosch", "x1", 7}))
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Other", "A1", &[]any{"ignored"}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	tbl, err := Read("Import.XLSX", buf)
	require.NoError(t, err)

	assert.Equal(t, []string{"Marque", "Cat Fab", "FsFam"}, tbl.Headers)
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "5", tbl.Rows[0].Values["FsFam"])
	assert.Equal(t, 4, tbl.Rows[1].Line)
	assert.Equal(t, "Bosch", tbl.Raw()[1]["Marque"])
}

func TestRead_Unsupported(t *testing.T) {
	_, err := Read("x.pdf", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Read("x.csv", strings.NewReader("\n\n"))
	assert.Error(t, err)
}
