package eod

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/tradelog"
)

const (
	tagEntry       = "ENTRY"
	tagStop        = "STOP"
	decisionSubmit = "submitted"
	decisionDenied = "denied:"
)

type eodSummarizer struct {
	loc       *time.Location
	closeTime time.Time
	now       func() time.Time
}

var _ interfaces.EodSummarizer = (*eodSummarizer)(nil)

// NewSummarizer builds a summarizer for the trading-day timezone. closeTime is
// the session close as HH:MM; summaries are due after it.
func NewSummarizer(loc *time.Location, closeTime string) (interfaces.EodSummarizer, error) {
	return newSummarizer(loc, closeTime, time.Now)
}

func newSummarizer(loc *time.Location, closeTime string, now func() time.Time) (*eodSummarizer, error) {
	ct, err := time.Parse("15:04", closeTime)
	if err != nil {
		return nil, fmt.Errorf("close time %q: %w", closeTime, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &eodSummarizer{loc: loc, closeTime: ct, now: now}, nil
}

// SummarizeDay folds the day's trade and signal logs into one CSV row per
// market. It returns an empty path when the day had no activity.
func (s *eodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	t = t.In(s.loc)
	aggs := map[string]*aggRow{}
	row := func(sym string) *aggRow {
		r := aggs[sym]
		if r == nil {
			r = &aggRow{Symbol: sym}
			aggs[sym] = r
		}
		return r
	}

	err := scanLines(tradelog.DailyFile(t), func(b []byte) {
		var tl tradeLine
		if json.Unmarshal(b, &tl) != nil || tl.Symbol == "" {
			return
		}
		r := row(tl.Symbol)
		if tl.Contract != "" {
			r.Contract = tl.Contract
		}
		switch tl.Tag {
		case tagEntry:
			r.EntryOrders++
			r.EntryQty += tl.Qty
			r.EntryValue += math.Abs(float64(tl.Qty)) * tl.Price
		case tagStop:
			r.StopOrders++
			r.LastStop = tl.Price
		}
	})
	if err != nil {
		return "", err
	}

	err = scanLines(tradelog.SignalsFile(t), func(b []byte) {
		var sl signalLine
		if json.Unmarshal(b, &sl) != nil || sl.Symbol == "" {
			return
		}
		r := row(sl.Symbol)
		switch sl.Signal {
		case "LONG":
			r.LongSignals++
		case "SHORT":
			r.ShortSignals++
		}
		switch {
		case sl.Decision == decisionSubmit:
			r.Submitted++
		case strings.HasPrefix(sl.Decision, decisionDenied):
			r.Denied++
		}
	})
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "contract", "long_signals", "short_signals", "submitted", "denied",
		"entry_orders", "entry_qty", "entry_value", "stop_orders", "last_stop"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	var total aggRow
	for _, k := range keys {
		r := aggs[k]
		rec := []string{
			r.Symbol, r.Contract,
			strconv.Itoa(r.LongSignals), strconv.Itoa(r.ShortSignals),
			strconv.Itoa(r.Submitted), strconv.Itoa(r.Denied),
			strconv.Itoa(r.EntryOrders), strconv.Itoa(r.EntryQty), fmt.Sprintf("%.2f", r.EntryValue),
			strconv.Itoa(r.StopOrders), fmt.Sprintf("%.4f", r.LastStop),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		total.LongSignals += r.LongSignals
		total.ShortSignals += r.ShortSignals
		total.Submitted += r.Submitted
		total.Denied += r.Denied
		total.EntryOrders += r.EntryOrders
		total.EntryValue += r.EntryValue
		total.StopOrders += r.StopOrders
	}
	_ = w.Write([]string{"TOTAL", "",
		strconv.Itoa(total.LongSignals), strconv.Itoa(total.ShortSignals),
		strconv.Itoa(total.Submitted), strconv.Itoa(total.Denied),
		strconv.Itoa(total.EntryOrders), "", fmt.Sprintf("%.2f", total.EntryValue),
		strconv.Itoa(total.StopOrders), ""})
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, s.now())
}

// ShouldRunNow reports true after the close on a day whose CSV is not written yet.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := s.now().In(s.loc)
	outPath := eodCSVPath(now)
	if now.After(closeOn(now, s.closeTime)) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}

// scanLines calls fn for each line of path. A missing file has no lines.
func scanLines(path string, fn func([]byte)) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fn(sc.Bytes())
	}
	return sc.Err()
}
