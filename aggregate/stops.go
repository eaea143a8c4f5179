package aggregate

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
)

// StopNames maps stop ids to display names.
type StopNames map[string]string

// Name returns the display name of a stop, or "Stop <id>" when unknown.
func (n StopNames) Name(id string) string {
	if name, ok := n[id]; ok && name != "" {
		return name
	}
	return "Stop " + id
}

type stopRow struct {
	StopID   string `csv:"stop_id"`
	StopName string `csv:"stop_name"`
}

// LoadStopNames reads a stop name table: a JSON object of id to name, or a
// CSV file with stop_id and stop_name columns such as GTFS stops.txt.
func LoadStopNames(path string) (StopNames, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stop names: %w", err)
	}
	defer f.Close()

	names := make(StopNames)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		if err := json.NewDecoder(f).Decode(&names); err != nil {
			return nil, fmt.Errorf("decode stop names %s: %w", path, err)
		}
		return names, nil
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("read stop names header %s: %w", path, err)
	}
	var rows []stopRow
	if err := dec.Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode stop names %s: %w", path, err)
	}
	for _, r := range rows {
		names[r.StopID] = r.StopName
	}
	return names, nil
}
