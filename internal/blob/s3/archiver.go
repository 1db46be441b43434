package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"derivflow/internal/domain"
	"derivflow/internal/market"
)

// TradeArchiveStore is the narrow read surface the archiver needs from the
// trade store.
type TradeArchiveStore interface {
	// ListSettledSince returns trades settled on or after the cutoff,
	// oldest first.
	ListSettledSince(ctx context.Context, cutoff time.Time) ([]domain.Trade, error)
}

// Archiver periodically exports settled trades as JSONL and candle windows
// as CSV to blob storage. Archives are additive; nothing is deleted from the
// primary store.
type Archiver struct {
	writer   domain.BlobWriter
	trades   TradeArchiveStore
	windows  *market.Cache
	interval time.Duration
	pruner   *Pruner
	logger   *slog.Logger
}

// NewArchiver creates an Archiver. interval <= 0 selects hourly runs.
func NewArchiver(
	writer domain.BlobWriter,
	trades TradeArchiveStore,
	windows *market.Cache,
	interval time.Duration,
	logger *slog.Logger,
) *Archiver {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Archiver{
		writer:   writer,
		trades:   trades,
		windows:  windows,
		interval: interval,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// Run archives on the configured interval until ctx is cancelled. Failures
// are logged; the next cycle retries the same window.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if n, err := a.ArchiveTrades(ctx, now.Add(-a.interval)); err != nil {
				a.logger.ErrorContext(ctx, "trade archive failed", slog.Any("error", err))
			} else if n > 0 {
				a.logger.InfoContext(ctx, "trades archived", slog.Int64("count", n))
			}
			if err := a.ArchiveCandles(ctx); err != nil {
				a.logger.ErrorContext(ctx, "candle archive failed", slog.Any("error", err))
			}
			if a.pruner != nil {
				if n, err := a.pruner.Prune(ctx, now); err != nil {
					a.logger.ErrorContext(ctx, "archive prune failed", slog.Any("error", err))
				} else if n > 0 {
					a.logger.InfoContext(ctx, "archive pruned", slog.Int("deleted", n))
				}
			}
		}
	}
}

// WithPruner enables retention pruning after each archive cycle.
func (a *Archiver) WithPruner(p *Pruner) *Archiver {
	a.pruner = p
	return a
}

// ArchiveTrades exports trades settled since the cutoff as JSONL to
// archive/trades/YYYY-MM-DD.jsonl and returns the record count.
func (a *Archiver) ArchiveTrades(ctx context.Context, since time.Time) (int64, error) {
	trades, err := a.trades.ListSettledSince(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := fmt.Sprintf("archive/trades/%s.jsonl", since.UTC().Format("2006-01-02"))
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}
	return int64(len(trades)), nil
}

// ArchiveCandles exports the current candle window of every tracked symbol
// as CSV to archive/candles/{symbol}/YYYY-MM-DDTHH.csv.
func (a *Archiver) ArchiveCandles(ctx context.Context) error {
	for _, symbol := range a.windows.Symbols() {
		snap := a.windows.Snapshot(symbol)
		if len(snap.Candles) == 0 {
			continue
		}
		buf, err := marshalCandleCSV(snap.Candles)
		if err != nil {
			return fmt.Errorf("s3blob: archive candles %s: %w", symbol, err)
		}
		path := fmt.Sprintf("archive/candles/%s/%s.csv", symbol, time.Now().UTC().Format("2006-01-02T15"))
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "text/csv"); err != nil {
			return fmt.Errorf("s3blob: archive candles upload %s: %w", symbol, err)
		}
	}
	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

func marshalCandleCSV(candles []domain.Candle) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"epoch", "open", "high", "low", "close"}); err != nil {
		return nil, err
	}
	for _, c := range candles {
		row := []string{
			strconv.FormatInt(c.Epoch.Unix(), 10),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
