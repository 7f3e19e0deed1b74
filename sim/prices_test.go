package sim

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadPriceCSV(t *testing.T) {
	path := writeCSV(t, `date,hour,price
2025-06-01,0,32.50
2025-06-01,1,28.10
2025-06-02,0,41.00
`)

	table, err := LoadPriceCSV(path, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())

	day1 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	price, ok := table.Lookup(day1, 1)
	require.True(t, ok)
	assert.InDelta(t, 28.10, price, 1e-9)

	_, ok = table.Lookup(day1, 5)
	assert.False(t, ok)

	days := table.Days()
	require.Len(t, days, 2)
	assert.True(t, days[0].Before(days[1]))
}

func TestLoadPriceCSVDateRange(t *testing.T) {
	path := writeCSV(t, `date,hour,price
2025-06-01,0,32.50
2025-06-02,0,41.00
2025-06-03,0,39.00
`)

	start := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	table, err := LoadPriceCSV(path, start, start)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Len())
	require.Len(t, table.Days(), 1)
	assert.Equal(t, "2025-06-02", table.Days()[0].Format("2006-01-02"))

	// A range covering nothing is an error, not an empty table.
	farFuture := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = LoadPriceCSV(path, farFuture, farFuture)
	assert.Error(t, err)
}

func TestLoadPriceCSVErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing price column", "date,hour\n2025-06-01,0\n"},
		{"bad date", "date,hour,price\nnot-a-date,0,32.50\n"},
		{"hour out of range", "date,hour,price\n2025-06-01,24,32.50\n"},
		{"bad price", "date,hour,price\n2025-06-01,0,cheap\n"},
		{"header only", "date,hour,price\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCSV(t, tt.content)
			_, err := LoadPriceCSV(path, time.Time{}, time.Time{})
			assert.Error(t, err)
		})
	}
}

func TestDayPrices(t *testing.T) {
	rows := make([]PriceRow, 0, 24)
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		rows = append(rows, PriceRow{Date: day, Hour: h, Price: float64(30 + h)})
	}
	table := NewPriceTable(rows)

	prices, ok := table.DayPrices(day)
	require.True(t, ok)
	require.Len(t, prices, 24)
	assert.InDelta(t, 30.0, prices[0], 1e-9)
	assert.InDelta(t, 53.0, prices[23], 1e-9)

	// A day with any missing hour is unusable.
	_, ok = table.DayPrices(day.AddDate(0, 0, 1))
	assert.False(t, ok)
}

func TestDuplicateRowsLastWins(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	table := NewPriceTable([]PriceRow{
		{Date: day, Hour: 5, Price: 40},
		{Date: day, Hour: 5, Price: 42},
	})
	price, ok := table.Lookup(day, 5)
	require.True(t, ok)
	assert.InDelta(t, 42.0, price, 1e-9)
}
