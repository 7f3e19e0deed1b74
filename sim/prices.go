// sim/prices.go
package sim

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"
)

const dateLayout = "2006-01-02"

// PriceRow is one hourly price observation.
type PriceRow struct {
	Date  time.Time // midnight of the delivery day
	Hour  int       // 0-23
	Price float64   // EUR/MWh
}

// PriceTable is a historical day-ahead price series with exact (date, hour)
// lookup, as loaded from the standard `date,hour,price` CSV.
type PriceTable struct {
	rows  []PriceRow
	index map[string]float64
}

func priceKey(date time.Time, hour int) string {
	return fmt.Sprintf("%s|%d", date.Format(dateLayout), hour)
}

// NewPriceTable builds a table from rows. Later duplicates of the same
// (date, hour) slot win, matching a re-downloaded history overriding stale rows.
func NewPriceTable(rows []PriceRow) *PriceTable {
	t := &PriceTable{
		rows:  rows,
		index: make(map[string]float64, len(rows)),
	}
	for _, r := range rows {
		t.index[priceKey(r.Date, r.Hour)] = r.Price
	}
	return t
}

// Lookup returns the price for an exact (date, hour) match.
func (t *PriceTable) Lookup(date time.Time, hour int) (float64, bool) {
	price, ok := t.index[priceKey(date, hour)]
	return price, ok
}

// Len returns the number of rows in the table.
func (t *PriceTable) Len() int {
	return len(t.rows)
}

// Days returns the distinct delivery days in the table, sorted ascending.
func (t *PriceTable) Days() []time.Time {
	seen := make(map[string]time.Time)
	for _, r := range t.rows {
		seen[r.Date.Format(dateLayout)] = r.Date
	}
	days := make([]time.Time, 0, len(seen))
	for _, d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}

// DayPrices returns the 24 hourly prices for one delivery day. Hours missing
// from the table are reported via ok=false; partial days are unusable for
// the two-hour cycle strategy.
func (t *PriceTable) DayPrices(date time.Time) ([]float64, bool) {
	prices := make([]float64, 24)
	for h := 0; h < 24; h++ {
		p, ok := t.Lookup(date, h)
		if !ok {
			return nil, false
		}
		prices[h] = p
	}
	return prices, true
}

// LoadPriceCSV reads a price history CSV with columns date,hour,price.
// The header row is required. Rows outside [startDate, endDate] are skipped
// when the bounds are non-zero.
func LoadPriceCSV(path string, startDate, endDate time.Time) (*PriceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price CSV: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse price CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("price CSV %s has no data rows", path)
	}

	header := records[0]
	col := map[string]int{}
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"date", "hour", "price"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("price CSV %s is missing column %q", path, required)
		}
	}

	var rows []PriceRow
	for lineNo, rec := range records[1:] {
		date, err := time.Parse(dateLayout, rec[col["date"]])
		if err != nil {
			return nil, fmt.Errorf("price CSV row %d: bad date %q: %w", lineNo+2, rec[col["date"]], err)
		}
		hour, err := strconv.Atoi(rec[col["hour"]])
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("price CSV row %d: bad hour %q", lineNo+2, rec[col["hour"]])
		}
		price, err := strconv.ParseFloat(rec[col["price"]], 64)
		if err != nil {
			return nil, fmt.Errorf("price CSV row %d: bad price %q", lineNo+2, rec[col["price"]])
		}

		if !startDate.IsZero() && date.Before(startDate) {
			continue
		}
		if !endDate.IsZero() && date.After(endDate) {
			continue
		}

		rows = append(rows, PriceRow{Date: date, Hour: hour, Price: price})
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("price CSV %s has no rows in the requested date range", path)
	}
	return NewPriceTable(rows), nil
}
