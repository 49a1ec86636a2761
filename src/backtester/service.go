package backtester

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jiaming2012/tick-analytics/src/models"
)

type WindowSource interface {
	QueryWindows(ctx context.Context, symbol string, from, to time.Time) ([]models.Window, error)
}

type Service struct {
	source WindowSource
	engine *Engine
	tracer trace.Tracer
}

func NewService(source WindowSource, engine *Engine) *Service {
	return &Service{
		source: source,
		engine: engine,
		tracer: otel.Tracer("backtester"),
	}
}

// Backtest replays the stored windows of symbol closed within [from, to].
func (s *Service) Backtest(ctx context.Context, symbol string, from, to time.Time) (*models.BacktestResult, error) {
	ctx, span := s.tracer.Start(ctx, "backtester.Backtest", trace.WithAttributes(
		attribute.String("symbol", symbol),
		attribute.String("from", from.Format(time.RFC3339)),
		attribute.String("to", to.Format(time.RFC3339)),
	))
	defer span.End()

	windows, err := s.source.QueryWindows(ctx, symbol, from, to)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("backtester.Backtest: failed to query windows: %w", err)
	}

	result, err := s.engine.RunWindows(symbol, windows)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("backtester.Backtest: %w", err)
	}

	span.SetAttributes(attribute.Int("windows", len(windows)), attribute.Int("trades", result.TradeCount))

	log.WithFields(log.Fields{
		"symbol":  symbol,
		"windows": len(windows),
		"trades":  result.TradeCount,
	}).Infof("backtest finished: total pnl %.6f", result.TotalPnL)

	return result, nil
}
