// Package census aggregates resident population tables into per-subzone
// age cohorts.
package census

import (
	"context"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hscore/internal/fetcher"
)

// Columns names the identifying column and the three cohort partitions.
type Columns struct {
	ID      string
	Youth   []string
	Working []string
	Elderly []string
}

// Record is one subzone's population split into cohorts.
type Record struct {
	Subzone string
	Youth   int64
	Working int64
	Elderly int64
	Total   int64
}

// Table is the aggregated census keyed by subzone.
type Table struct {
	Records    []Record
	Rollups    int
	Duplicates int

	bySubzone map[string]int
}

// Lookup returns the record for a subzone key (upper-cased, trimmed).
func (t *Table) Lookup(subzone string) (Record, bool) {
	if t == nil {
		return Record{}, false
	}
	i, ok := t.bySubzone[subzone]
	if !ok {
		return Record{}, false
	}
	return t.Records[i], true
}

// Len returns the number of subzone records.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Records)
}

// IsRollup reports whether an identifying value marks a planning-area or
// grand total row rather than a subzone.
func IsRollup(id string) bool {
	return strings.Contains(id, " - Total") || strings.TrimSpace(id) == "Total"
}

// Key normalises an identifying value into a subzone key.
func Key(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// ParseCount reads a census cell. Thousands separators are stripped;
// blanks, dashes and anything else non-numeric count as zero.
func ParseCount(cell string) int64 {
	s := strings.ReplaceAll(strings.TrimSpace(cell), ",", "")
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int64(math.Round(f))
}

// Aggregate sums cohort columns for every non-rollup row. The first row of
// rows is the header. Cohort columns absent from the header count as zero;
// a missing ID column, or a header with none of the cohort columns, is an
// error.
func Aggregate(rows [][]string, cols Columns) (*Table, error) {
	log := zap.L().With(zap.String("component", "census"))

	if len(rows) == 0 {
		return nil, eris.New("census: table is empty")
	}
	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		header[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}

	idIdx, ok := header[cols.ID]
	if !ok {
		return nil, eris.Errorf("census: id column %q not found", cols.ID)
	}

	resolve := func(names []string) []int {
		idx := make([]int, 0, len(names))
		for _, n := range names {
			if i, ok := header[n]; ok {
				idx = append(idx, i)
				continue
			}
			log.Warn("census column missing, counted as zero", zap.String("column", n))
		}
		return idx
	}
	youth, working, elderly := resolve(cols.Youth), resolve(cols.Working), resolve(cols.Elderly)
	if len(youth)+len(working)+len(elderly) == 0 {
		return nil, eris.New("census: none of the cohort columns were found")
	}

	sum := func(row []string, idx []int) int64 {
		var total int64
		for _, i := range idx {
			if i < len(row) {
				total += ParseCount(row[i])
			}
		}
		return total
	}

	t := &Table{bySubzone: make(map[string]int)}
	for _, row := range rows[1:] {
		if idIdx >= len(row) {
			continue
		}
		id := row[idIdx]
		if IsRollup(id) {
			t.Rollups++
			continue
		}
		key := Key(id)
		if key == "" {
			continue
		}
		if _, dup := t.bySubzone[key]; dup {
			t.Duplicates++
			log.Warn("duplicate census row ignored", zap.String("subzone", key))
			continue
		}

		r := Record{
			Subzone: key,
			Youth:   sum(row, youth),
			Working: sum(row, working),
			Elderly: sum(row, elderly),
		}
		r.Total = r.Youth + r.Working + r.Elderly
		t.bySubzone[key] = len(t.Records)
		t.Records = append(t.Records, r)
	}

	log.Info("census aggregated",
		zap.Int("subzones", len(t.Records)),
		zap.Int("rollups_dropped", t.Rollups),
		zap.Int("duplicates", t.Duplicates),
	)
	return t, nil
}

// LoadOptions selects the XLSX sheet or the CSV text encoding.
type LoadOptions struct {
	Sheet    string
	Encoding string
}

// Load reads a census table from a .csv or .xlsx file and aggregates it.
func Load(ctx context.Context, path string, cols Columns, opts LoadOptions) (*Table, error) {
	var rows [][]string
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: opts.Sheet})
	case ".csv", ".txt", "":
		rows, err = fetcher.ReadCSV(ctx, path, fetcher.CSVOptions{LazyQuotes: true, Encoding: opts.Encoding})
	default:
		return nil, eris.Errorf("census: unsupported file type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "census: read %s", path)
	}
	return Aggregate(rows, cols)
}
