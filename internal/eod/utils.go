package eod

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"turtle-trader/internal/tradelog"
)

func eodCSVPath(t time.Time) string {
	return filepath.Join(tradelog.Dir(), "eod", t.Format("2006-01-02")+".csv")
}

// closeOn returns the session close on t's calendar day.
func closeOn(t, at time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), at.Hour(), at.Minute(), 0, 0, t.Location())
}

// ReadSummaryStats counts the market rows of an EOD CSV and reads the order
// totals from its TOTAL row.
func ReadSummaryStats(path string) (SummaryStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return SummaryStats{}, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return SummaryStats{}, fmt.Errorf("read %s: %w", path, err)
	}

	var st SummaryStats
	for i, row := range rows {
		if i == 0 || len(row) < 10 {
			continue
		}
		if row[0] != "TOTAL" {
			st.Markets++
			continue
		}
		st.EntryOrders, _ = strconv.Atoi(row[6])
		st.StopOrders, _ = strconv.Atoi(row[9])
	}
	return st, nil
}
