package sources

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/parquet-go/parquet-go"
)

func open(source, path string) (*os.File, error) {
	if path == "" {
		return nil, unavailable(source, path, errors.New("no path configured"))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, unavailable(source, path, err)
	}
	return f, nil
}

func isParquet(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".parquet")
}

// decodeCSV reads every row of path into out after checking that the
// header carries the required columns. It returns the header.
func decodeCSV(source, path string, out any, required ...string) ([]string, error) {
	f, err := open(source, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	dec, err := csvutil.NewDecoder(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, mismatch(source, path, "empty file")
		}
		return nil, mismatch(source, path, "read header: %v", err)
	}

	header := dec.Header()
	if missing := missingColumns(header, required); len(missing) > 0 {
		return nil, mismatch(source, path, "missing columns %s", strings.Join(missing, ", "))
	}

	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return nil, mismatch(source, path, "%v", err)
	}
	return header, nil
}

// readParquet reads every row of a parquet file into T after checking that
// the file schema has the required columns.
func readParquet[T any](source, path string, required ...string) ([]T, error) {
	f, err := open(source, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, unavailable(source, path, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, mismatch(source, path, "open parquet: %v", err)
	}
	var missing []string
	for _, col := range required {
		if _, ok := pf.Schema().Lookup(col); !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, mismatch(source, path, "missing columns %s", strings.Join(missing, ", "))
	}

	rows, err := parquet.Read[T](f, st.Size())
	if err != nil {
		return nil, mismatch(source, path, "decode parquet: %v", err)
	}
	return rows, nil
}

func missingColumns(header, required []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[strings.TrimSpace(h)] = true
	}
	var missing []string
	for _, col := range required {
		if !have[col] {
			missing = append(missing, col)
		}
	}
	return missing
}

func hasColumn(header []string, col string) bool {
	return len(missingColumns(header, []string{col})) == 0
}
