package tradelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	mu  sync.Mutex
	loc = time.UTC
)

// Entry is one order line in the daily trade log.
type Entry struct {
	Time     string         `json:"time"`
	Symbol   string         `json:"symbol"`
	Contract string         `json:"contract"`
	Kind     string         `json:"kind"`
	Qty      int            `json:"qty"`
	Price    float64        `json:"price"`
	OrderID  string         `json:"order_id"`
	Tag      string         `json:"tag"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// SignalEntry is one evaluated breakout, accepted or not.
type SignalEntry struct {
	Time      string             `json:"time"`
	Symbol    string             `json:"symbol"`
	Signal    string             `json:"signal"`
	Decision  string             `json:"decision"`
	Price     float64            `json:"price"`
	Size      int                `json:"size"`
	ATR       float64            `json:"atr"`
	DollarVol float64            `json:"dollar_volatility"`
	Levels    map[string]float64 `json:"levels"`
}

// SetLocation sets the timezone used to stamp entries and name daily files.
func SetLocation(l *time.Location) {
	mu.Lock()
	defer mu.Unlock()
	if l != nil {
		loc = l
	}
}

func logDir() string {
	if v := os.Getenv("TRADER_LOG_DIR"); v != "" {
		return v
	}
	return "logs"
}

func dailyFilepath(t time.Time) string {
	return filepath.Join(logDir(), t.Format("2006-01-02")+".txt")
}

func signalsFilepath(t time.Time) string {
	return filepath.Join(logDir(), "signals", t.Format("2006-01-02")+".txt")
}

// Dir is the root of the trade and signal logs.
func Dir() string { return logDir() }

// DailyFile returns the trade log path for the given day.
func DailyFile(day time.Time) string {
	return dailyFilepath(day)
}

// SignalsFile returns the signal log path for the given day.
func SignalsFile(day time.Time) string {
	return signalsFilepath(day)
}

func Append(e Entry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(loc)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(dailyFilepath(now), e)
}

func AppendSignal(e SignalEntry) error {
	mu.Lock()
	defer mu.Unlock()
	now := time.Now().In(loc)
	e.Time = now.Format("2006-01-02 15:04:05")
	return appendLine(signalsFilepath(now), e)
}

func appendLine(p string, v any) error {
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips log files last modified more than retentionDays ago.
func CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(logDir(), func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err != nil {
			_ = os.Remove(gz)
			return nil
		}
		_ = os.Remove(p)
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
