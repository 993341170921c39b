package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html/charset"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Row to jeden wiersz danych: numer linii w pliku + komórki po nagłówku.
type Row struct {
	Line   int
	Values map[string]any
}

type Table struct {
	Headers []string
	Rows    []Row
}

// Raw zwraca same wartości wierszy (w kolejności pliku).
func (t *Table) Raw() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Values
	}
	return out
}

type Options struct {
	// Charset wymusza kodowanie CSV (np. "windows-1250"); puste = UTF-8 albo windows-1252.
	Charset string
	// Delimiter wymusza separator CSV; 0 = wykryj.
	Delimiter rune
}

// Read czyta plik po rozszerzeniu: CSV/TXT/TSV albo XLSX/XLSM (pierwszy arkusz).
func Read(name string, r io.Reader) (*Table, error) {
	return ReadWith(name, r, Options{})
}

func ReadWith(name string, r io.Reader, opt Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt", ".tsv":
		return readCSV(r, opt)
	case ".xlsx", ".xlsm":
		return readXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
}

var delimiters = []rune{';', ',', '\t', '|'}

func readCSV(r io.Reader, opt Options) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	label := normalizeCharset(opt.Charset)
	if label == "" && !utf8.Valid(raw) {
		// eksporty z Excela bez UTF-8 to zwykle windows-1252
		label = "windows-1252"
	}
	if label != "" && label != "utf-8" {
		dec, err := charset.NewReaderLabel(label, bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("charset %s: %w", label, err)
		}
		if raw, err = io.ReadAll(dec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", label, err)
		}
	}

	comma := opt.Delimiter
	if comma == 0 {
		comma = DetectDelimiter(raw)
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	t := &Table{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if t.Headers == nil {
			if blank(rec) {
				continue
			}
			t.Headers = trimAll(rec)
			continue
		}
		if blank(rec) {
			continue
		}
		t.Rows = append(t.Rows, Row{Line: line, Values: toValues(t.Headers, rec)})
	}
	if t.Headers == nil {
		return nil, errors.New("file has no header row")
	}
	return t, nil
}

func readXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("xlsx: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("xlsx: %w", err)
	}

	t := &Table{}
	for i, rec := range rows {
		if blank(rec) {
			continue
		}
		if t.Headers == nil {
			t.Headers = trimAll(rec)
			continue
		}
		t.Rows = append(t.Rows, Row{Line: i + 1, Values: toValues(t.Headers, rec)})
	}
	if t.Headers == nil {
		return nil, errors.New("xlsx: first sheet has no header row")
	}
	return t, nil
}

// DetectDelimiter wybiera separator, który występuje (poza cudzysłowami)
// tyle samo razy w każdej z pierwszych linii; przy remisie wygrywa częstszy.
func DetectDelimiter(data []byte) rune {
	lines := sampleLines(data, 10)
	if len(lines) == 0 {
		return ','
	}

	best, bestCount, bestConsistent := ',', 0, false
	for _, d := range delimiters {
		first := countOutsideQuotes(lines[0], d)
		if first == 0 {
			continue
		}
		consistent := true
		for _, l := range lines[1:] {
			if countOutsideQuotes(l, d) != first {
				consistent = false
				break
			}
		}
		switch {
		case consistent && !bestConsistent:
			best, bestCount, bestConsistent = d, first, true
		case consistent == bestConsistent && first > bestCount:
			best, bestCount = d, first
		}
	}
	return best
}

func sampleLines(data []byte, n int) []string {
	var out []string
	for _, l := range strings.Split(string(data), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
		if len(out) == n {
			break
		}
	}
	return out
}

func countOutsideQuotes(line string, d rune) int {
	n, quoted := 0, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

func toValues(headers, rec []string) map[string]any {
	out := make(map[string]any, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		if _, dup := out[h]; dup {
			continue
		}
		v := ""
		if i < len(rec) {
			v = rec[i]
		}
		out[h] = v
	}
	return out
}

func trimAll(rec []string) []string {
	out := make([]string, len(rec))
	for i, s := range rec {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

func blank(rec []string) bool {
	for _, s := range rec {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

// normalizeCharset mapuje nietypowe etykiety na nazwy rozpoznawane przez charset.NewReaderLabel
func normalizeCharset(cs string) string {
	c := strings.TrimSpace(strings.ToLower(cs))
	switch c {
	case "latin ii", "latin-2", "latin2", "iso8859-2", "iso_8859-2":
		return "iso-8859-2"
	case "cp1250", "windows1250", "win-1250":
		return "windows-1250"
	case "cp1252", "windows1252", "win-1252", "ansi":
		return "windows-1252"
	case "utf8":
		return "utf-8"
	default:
		return c
	}
}
