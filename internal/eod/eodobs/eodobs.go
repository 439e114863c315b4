package eodobs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"turtle-trader/internal/eod"
	"turtle-trader/internal/interfaces"
	"turtle-trader/internal/logger"
	"turtle-trader/internal/trace"
)

type observableSummarizer struct {
	summarizer interfaces.EodSummarizer
	now        func() time.Time
}

var _ interfaces.EodSummarizer = (*observableSummarizer)(nil)

func Wrap(summarizer interfaces.EodSummarizer) interfaces.EodSummarizer {
	return &observableSummarizer{
		summarizer: summarizer,
		now:        time.Now,
	}
}

func (o *observableSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	day := t.Format("2006-01-02")
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeDay",
		oteltrace.WithAttributes(attribute.String("eod.day", day)))
	defer span.End()

	logger.InfoSkip(ctx, 1, "Summarizing trading day", "day", day)

	start := o.now()
	csvPath, err := o.summarizer.SummarizeDay(ctx, t)
	return o.finish(ctx, span, day, start, csvPath, err)
}

func (o *observableSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	day := o.now().Format("2006-01-02")
	ctx, span := trace.StartSpan(ctx, "eod.SummarizeToday",
		oteltrace.WithAttributes(attribute.String("eod.day", day)))
	defer span.End()

	logger.InfoSkip(ctx, 1, "Summarizing today's session")

	start := o.now()
	csvPath, err := o.summarizer.SummarizeToday(ctx)
	return o.finish(ctx, span, day, start, csvPath, err)
}

// finish tags the span with what the summary covered and logs the outcome on
// behalf of the exported caller.
func (o *observableSummarizer) finish(ctx context.Context, span oteltrace.Span, day string, start time.Time, csvPath string, err error) (string, error) {
	elapsed := o.now().Sub(start).Milliseconds()
	if err != nil {
		logger.ErrorWithErrSkip(ctx, 2, "EOD summary failed", err,
			"day", day,
			"duration_ms", elapsed,
		)
		return "", err
	}

	span.SetAttributes(attribute.Bool("eod.written", csvPath != ""))
	if csvPath == "" {
		logger.InfoSkip(ctx, 2, "No trading activity to summarize", "day", day)
		return "", nil
	}

	span.SetAttributes(attribute.String("eod.csv_path", csvPath))
	fields := []any{"day", day, "csv_path", csvPath, "duration_ms", elapsed}
	if st, statErr := eod.ReadSummaryStats(csvPath); statErr == nil {
		span.SetAttributes(
			attribute.Int("eod.markets", st.Markets),
			attribute.Int("eod.entry_orders", st.EntryOrders),
			attribute.Int("eod.stop_orders", st.StopOrders),
		)
		fields = append(fields,
			"markets", st.Markets,
			"entry_orders", st.EntryOrders,
			"stop_orders", st.StopOrders,
		)
	} else {
		logger.Warn(ctx, "EOD summary written but unreadable", "csv_path", csvPath, "error", statErr)
	}
	logger.InfoSkip(ctx, 2, "EOD summary written", fields...)

	return csvPath, nil
}

func (o *observableSummarizer) ShouldRunNow() (bool, string) {
	ctx, span := trace.StartSpan(context.Background(), "eod.ShouldRunNow")
	defer span.End()

	due, csvPath := o.summarizer.ShouldRunNow()
	span.SetAttributes(
		attribute.Bool("eod.due", due),
		attribute.String("eod.csv_path", csvPath),
	)

	logger.DebugSkip(ctx, 1, "EOD due check", "due", due, "csv_path", csvPath)
	return due, csvPath
}
