package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	pkgch "FinCast/pkg/clickhouse"
	applogger "FinCast/pkg/logger"
)

// Schema creates the candle tables read by CHChartStore.
var Schema = []string{
	`CREATE DATABASE IF NOT EXISTS fincast`,
	`CREATE TABLE IF NOT EXISTS fincast.candles_1s (
        bucket DateTime64(3), symbol LowCardinality(String),
        open Float64, high Float64, low Float64, close Float64, vol Float64
    ) ENGINE = ReplacingMergeTree ORDER BY (symbol, bucket)`,
	`CREATE TABLE IF NOT EXISTS fincast.candles_1m (
        bucket DateTime64(3), symbol LowCardinality(String),
        open Float64, high Float64, low Float64, close Float64, vol Float64
    ) ENGINE = ReplacingMergeTree ORDER BY (symbol, bucket)`,
}

// CHChartStore implements ChartStore backed by ClickHouse candle tables.
type CHChartStore struct {
	db *sql.DB
	l  *applogger.Logger
}

func NewCHChartStore(ch *pkgch.Client, l *applogger.Logger) *CHChartStore {
	if l == nil {
		l = applogger.NewNop()
	}
	return &CHChartStore{db: ch.DB(), l: l}
}

func (s *CHChartStore) GetChart(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe, channels []string) (*models.Chart, error) {
	q, err := rangeQuery(tf)
	if err != nil {
		return nil, err
	}
	candles, err := s.query(ctx, "get_chart", tf, q, symbol, from, to)
	if err != nil {
		return nil, err
	}
	return models.CandlesToChart(candles, channels)
}

// GetLatestChart returns the n most recent candles in ascending time order.
func (s *CHChartStore) GetLatestChart(ctx context.Context, symbol string, n int, tf domrepo.Timeframe, channels []string) (*models.Chart, error) {
	if n <= 0 {
		return nil, &models.ConfigError{Field: "limit", Reason: fmt.Sprintf("must be positive, got %d", n)}
	}
	q, err := latestQuery(tf)
	if err != nil {
		return nil, err
	}
	candles, err := s.query(ctx, "latest_chart", tf, q, symbol, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return models.CandlesToChart(candles, channels)
}

func (s *CHChartStore) query(ctx context.Context, op string, tf domrepo.Timeframe, q string, args ...any) ([]models.Candle, error) {
	start := time.Now()
	fields := []applogger.Field{
		applogger.String("op", op),
		applogger.String("symbol", fmt.Sprint(args[0])),
		applogger.String("tf", string(tf)),
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			s.l.Error("clickhouse scan error", append(fields, applogger.Error(err))...)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse rows error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse query ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration", time.Since(start)),
	)...)
	return out, nil
}

// selectFor returns the candle projection and source for tf. 5m candles are
// folded from the 1m table.
func selectFor(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1s:
		return `SELECT bucket, symbol, open, high, low, close, vol FROM fincast.candles_1s WHERE symbol = ?`, nil
	case domrepo.TF1m:
		return `SELECT bucket, symbol, open, high, low, close, vol FROM fincast.candles_1m WHERE symbol = ?`, nil
	case domrepo.TF5m:
		return `SELECT toStartOfFiveMinutes(bucket) AS b, any(symbol),
            argMin(open, bucket), max(high), min(low), argMax(close, bucket), sum(vol)
            FROM fincast.candles_1m WHERE symbol = ?`, nil
	default:
		return "", &models.ConfigError{Field: "timeframe", Reason: fmt.Sprintf("unsupported timeframe %q", tf)}
	}
}

func rangeQuery(tf domrepo.Timeframe) (string, error) {
	sel, err := selectFor(tf)
	if err != nil {
		return "", err
	}
	if tf == domrepo.TF5m {
		return sel + ` AND bucket >= ? AND bucket <= ? GROUP BY b ORDER BY b ASC`, nil
	}
	return sel + ` AND bucket >= ? AND bucket <= ? ORDER BY bucket ASC`, nil
}

func latestQuery(tf domrepo.Timeframe) (string, error) {
	sel, err := selectFor(tf)
	if err != nil {
		return "", err
	}
	if tf == domrepo.TF5m {
		return sel + ` GROUP BY b ORDER BY b DESC LIMIT ?`, nil
	}
	return sel + ` ORDER BY bucket DESC LIMIT ?`, nil
}
