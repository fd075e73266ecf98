package census

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

var testCols = Columns{
	ID:      "Number",
	Youth:   []string{"Total_0_4", "Total_5_9"},
	Working: []string{"Total_30_34"},
	Elderly: []string{"Total_65_69", "Total_90andOver"},
}

func testRows() [][]string {
	return [][]string{
		{"Number", "Total_Total", "Total_0_4", "Total_5_9", "Total_30_34", "Total_65_69", "Total_90andOver"},
		{"Total", "9999", "1", "1", "1", "1", "1"},
		{"Ang Mo Kio - Total", "500", "100", "100", "100", "100", "100"},
		{"Ang Mo Kio Town Centre", "", "10", "20", "30", "40", "5"},
		{"Cheng San", "", "1,000", "-", "2000", "x", ""},
		{"ABC - Total", "", "50", "50", "50", "50", "50"},
		{"ABC", "", "1", "2", "3", "4", "5"},
	}
}

func TestAggregate(t *testing.T) {
	table, err := Aggregate(testRows(), testCols)
	require.NoError(t, err)

	assert.Equal(t, 3, table.Len())
	assert.Equal(t, 3, table.Rollups)

	r, ok := table.Lookup("ANG MO KIO TOWN CENTRE")
	require.True(t, ok)
	assert.Equal(t, int64(30), r.Youth)
	assert.Equal(t, int64(30), r.Working)
	assert.Equal(t, int64(45), r.Elderly)
	assert.Equal(t, int64(105), r.Total)

	r, ok = table.Lookup("CHENG SAN")
	require.True(t, ok)
	assert.Equal(t, int64(1000), r.Youth)
	assert.Equal(t, int64(2000), r.Working)
	assert.Equal(t, int64(0), r.Elderly)
}

func TestAggregate_RollupExcludedButSubzoneKept(t *testing.T) {
	table, err := Aggregate(testRows(), testCols)
	require.NoError(t, err)

	r, ok := table.Lookup("ABC")
	require.True(t, ok)
	assert.Equal(t, int64(15), r.Total)

	_, ok = table.Lookup("ABC - TOTAL")
	assert.False(t, ok)
}

func TestAggregate_Duplicates(t *testing.T) {
	rows := [][]string{
		{"Number", "Total_0_4"},
		{"Bedok North", "10"},
		{" bedok north ", "99"},
	}
	table, err := Aggregate(rows, Columns{ID: "Number", Youth: []string{"Total_0_4"}})
	require.NoError(t, err)
	assert.Equal(t, 1, table.Duplicates)
	r, _ := table.Lookup("BEDOK NORTH")
	assert.Equal(t, int64(10), r.Total)
}

func TestAggregate_MissingColumns(t *testing.T) {
	_, err := Aggregate([][]string{{"Planning Area", "Total_0_4"}}, testCols)
	assert.ErrorContains(t, err, "id column")

	_, err = Aggregate([][]string{{"Number", "Other"}}, testCols)
	assert.ErrorContains(t, err, "cohort columns")

	_, err = Aggregate(nil, testCols)
	assert.Error(t, err)

	// Partial cohort columns count missing ones as zero.
	table, err := Aggregate([][]string{{"Number", "Total_0_4"}, {"A", "7"}}, testCols)
	require.NoError(t, err)
	r, _ := table.Lookup("A")
	assert.Equal(t, int64(7), r.Total)
}

func TestAggregate_ShortRowsAndBOM(t *testing.T) {
	rows := [][]string{
		{"\ufeffNumber", "Total_0_4", "Total_30_34"},
		{"Short", "4"},
		{},
	}
	table, err := Aggregate(rows, testCols)
	require.NoError(t, err)
	r, ok := table.Lookup("SHORT")
	require.True(t, ok)
	assert.Equal(t, int64(4), r.Total)
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"42", 42},
		{" 1,234 ", 1234},
		{"-", 0},
		{"", 0},
		{"na", 0},
		{"NaN", 0},
		{"12.6", 13},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCount(tt.in), tt.in)
	}
}

func TestIsRollup(t *testing.T) {
	assert.True(t, IsRollup("Total"))
	assert.True(t, IsRollup("Bedok - Total"))
	assert.False(t, IsRollup("Total Town"))
	assert.False(t, IsRollup("Bedok"))
}

func TestLoad_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "census.csv")
	content := "Number,Total_0_4,Total_5_9,Total_30_34,Total_65_69,Total_90andOver\n" +
		"Total,1,1,1,1,1\n" +
		"\"Marina South\",\"1,200\",0,10,0,0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := Load(context.Background(), path, testCols, LoadOptions{})
	require.NoError(t, err)
	r, ok := table.Lookup("MARINA SOUTH")
	require.True(t, ok)
	assert.Equal(t, int64(1210), r.Total)
}

func TestLoad_XLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("T1")
	require.NoError(t, err)
	for _, rowData := range testRows() {
		row := sheet.AddRow()
		for _, v := range rowData {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "census.xlsx")
	require.NoError(t, f.Save(path))

	table, err := Load(context.Background(), path, testCols, LoadOptions{Sheet: "T1"})
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "missing.csv"), testCols, LoadOptions{})
	assert.Error(t, err)

	_, err = Load(context.Background(), "census.parquet", testCols, LoadOptions{})
	assert.ErrorContains(t, err, "unsupported file type")
}

func TestLoad_CSVLegacyEncoding(t *testing.T) {
	path := filepath.Join(t.TempDir(), "census.csv")
	content := "Number,Total_0_4,Total_5_9,Total_30_34,Total_65_69,Total_90andOver\n" +
		"Caf\xe9 Town,5,0,0,0,0\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := Load(context.Background(), path, testCols, LoadOptions{Encoding: "windows-1252"})
	require.NoError(t, err)
	r, ok := table.Lookup("CAFÉ TOWN")
	require.True(t, ok)
	assert.Equal(t, int64(5), r.Total)

	_, err = Load(context.Background(), path, testCols, LoadOptions{Encoding: "klingon"})
	assert.ErrorContains(t, err, "unsupported encoding")
}
