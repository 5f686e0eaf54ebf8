package serializer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"strconv"

	"github.com/agentuity/go-datacache/frame"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"
)

// columnar is the on-disk layout shared by the msgpack, json and yaml formats.
// Data is column-major for msgpack and row-major for the text formats.
type columnar struct {
	Columns []string `msgpack:"columns" json:"columns" yaml:"columns"`
	Data    [][]any  `msgpack:"data" json:"data" yaml:"data"`
}

// MsgpackFormat stores a frame column by column.
var MsgpackFormat = Format{
	Name:       "msgpack",
	Extensions: []string{".msgpack", ".mpk"},
	Load:       loadMsgpack,
	Save:       saveMsgpack,
}

func saveMsgpack(data *frame.Frame, path string) error {
	data = data.Normalize()
	out := columnar{Columns: data.Columns, Data: make([][]any, len(data.Columns))}
	for c := range data.Columns {
		col := make([]any, len(data.Rows))
		for r, row := range data.Rows {
			col[r] = row[c]
		}
		out.Data[c] = col
	}
	return writeFile(path, func(w *bufio.Writer) error {
		return msgpack.NewEncoder(w).Encode(&out)
	})
}

func loadMsgpack(path string) (*frame.Frame, error) {
	of, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer of.Close()
	dec := msgpack.NewDecoder(bufio.NewReader(of))
	dec.UseLooseInterfaceDecoding(true)
	var in columnar
	if err := dec.Decode(&in); err != nil {
		return nil, err
	}
	if len(in.Data) != len(in.Columns) {
		return nil, errors.Newf("column count mismatch: %d names, %d columns", len(in.Columns), len(in.Data))
	}
	f := frame.New(in.Columns)
	var rows int
	if len(in.Data) > 0 {
		rows = len(in.Data[0])
	}
	for r := 0; r < rows; r++ {
		row := make([]any, len(in.Columns))
		for c := range in.Columns {
			if r < len(in.Data[c]) {
				row[c] = in.Data[c][r]
			}
		}
		f.Rows = append(f.Rows, row)
	}
	return f, nil
}

// CSVFormat stores a frame as comma separated text.
var CSVFormat = Format{
	Name:       "csv",
	Extensions: []string{".csv"},
	Load:       delimitedLoader(','),
	Save:       delimitedSaver(','),
}

// TSVFormat stores a frame as tab separated text.
var TSVFormat = Format{
	Name:       "tsv",
	Extensions: []string{".tsv"},
	Load:       delimitedLoader('\t'),
	Save:       delimitedSaver('\t'),
}

func delimitedSaver(comma rune) SaveFunc {
	return func(data *frame.Frame, path string) error {
		return writeFile(path, func(w *bufio.Writer) error {
			cw := csv.NewWriter(w)
			cw.Comma = comma
			if err := cw.Write(data.Columns); err != nil {
				return err
			}
			for _, row := range data.Normalize().Rows {
				record := make([]string, len(row))
				for i, v := range row {
					record[i] = frame.Format(v)
				}
				if err := cw.Write(record); err != nil {
					return err
				}
			}
			cw.Flush()
			return cw.Error()
		})
	}
}

func delimitedLoader(comma rune) LoadFunc {
	return func(path string) (*frame.Frame, error) {
		of, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer of.Close()
		cr := csv.NewReader(bufio.NewReader(of))
		cr.Comma = comma
		cr.FieldsPerRecord = -1
		records, err := cr.ReadAll()
		if err != nil {
			return nil, err
		}
		return fromStrings(records), nil
	}
}

// JSONFormat stores a frame as {"columns": [...], "data": [[...], ...]}.
var JSONFormat = Format{
	Name:       "json",
	Extensions: []string{".json"},
	Load:       loadJSON,
	Save:       saveJSON,
}

func saveJSON(data *frame.Frame, path string) error {
	data = data.Normalize()
	return writeFile(path, func(w *bufio.Writer) error {
		return json.NewEncoder(w).Encode(columnar{Columns: data.Columns, Data: data.Rows})
	})
}

func loadJSON(path string) (*frame.Frame, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var in columnar
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.UseNumber()
	if err := dec.Decode(&in); err != nil {
		return nil, err
	}
	return fromRows(in, normalizeJSON), nil
}

// YAMLFormat stores a frame with the same layout as JSONFormat.
var YAMLFormat = Format{
	Name:       "yaml",
	Extensions: []string{".yaml", ".yml"},
	Load:       loadYAML,
	Save:       saveYAML,
}

func saveYAML(data *frame.Frame, path string) error {
	data = data.Normalize()
	return writeFile(path, func(w *bufio.Writer) error {
		enc := yaml.NewEncoder(w)
		if err := enc.Encode(columnar{Columns: data.Columns, Data: data.Rows}); err != nil {
			return err
		}
		return enc.Close()
	})
}

func loadYAML(path string) (*frame.Frame, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var in columnar
	if err := yaml.Unmarshal(buf, &in); err != nil {
		return nil, err
	}
	return fromRows(in, normalizeYAML), nil
}

// XLSXFormat stores a frame in the first worksheet of a spreadsheet.
var XLSXFormat = Format{
	Name:       "xlsx",
	Extensions: []string{".xlsx"},
	Load:       loadXLSX,
	Save:       saveXLSX,
}

func saveXLSX(data *frame.Frame, path string) error {
	data = data.Normalize()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	header := make([]any, len(data.Columns))
	for i, c := range data.Columns {
		header[i] = c
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range data.Rows {
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	return writeFile(path, func(w *bufio.Writer) error {
		return f.Write(w)
	})
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	vals := append([]any(nil), values...)
	return f.SetSheetRow(sheet, cell, &vals)
}

func loadXLSX(path string) (*frame.Frame, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, err
	}
	return fromStrings(rows), nil
}

func writeFile(path string, write func(w *bufio.Writer) error) error {
	of, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(of)
	if err := write(w); err != nil {
		of.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		of.Close()
		return err
	}
	return of.Close()
}

// fromStrings builds a frame from a header row plus text rows, inferring
// cell types.
func fromStrings(records [][]string) *frame.Frame {
	if len(records) == 0 {
		return frame.New(nil)
	}
	f := frame.New(records[0])
	for _, rec := range records[1:] {
		row := make([]any, len(f.Columns))
		for i := 0; i < len(row) && i < len(rec); i++ {
			row[i] = Infer(rec[i])
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

func fromRows(in columnar, normalize func(any) any) *frame.Frame {
	f := frame.New(in.Columns)
	for _, rec := range in.Data {
		row := make([]any, len(f.Columns))
		for i := 0; i < len(row) && i < len(rec); i++ {
			row[i] = normalize(rec[i])
		}
		f.Rows = append(f.Rows, row)
	}
	return f
}

// Infer converts a text cell into int64, float64, bool or string. The empty
// string becomes nil.
func Infer(s string) any {
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true", "TRUE", "True":
		return true
	case "false", "FALSE", "False":
		return false
	}
	return s
}

func normalizeJSON(v any) any {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	}
	return v
}

func normalizeYAML(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	}
	return v
}
