package auction

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Lot outcomes reported on the auction.lots counter.
const (
	outcomeSold    = "sold"
	outcomeUnsold  = "unsold"
	outcomeSkipped = "skipped"
)

type metrics struct {
	bids      metric.Int64Counter
	lots      metric.Int64Counter
	salePrice metric.Int64Histogram
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	meter := mp.Meter(instrumentationName)

	bids, err := meter.Int64Counter("auction.bids",
		metric.WithDescription("Bids received, by validation result."),
		metric.WithUnit("{bid}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating bids counter: %w", err)
	}

	lots, err := meter.Int64Counter("auction.lots",
		metric.WithDescription("Lots finished, by outcome."),
		metric.WithUnit("{lot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating lots counter: %w", err)
	}

	price, err := meter.Int64Histogram("auction.sale.price",
		metric.WithDescription("Winning bid of sold lots."),
		metric.WithUnit("{point}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sale price histogram: %w", err)
	}

	return &metrics{bids: bids, lots: lots, salePrice: price}, nil
}

func (m *metrics) bid(ctx context.Context, err error) {
	m.bids.Add(ctx, 1, metric.WithAttributes(attribute.String("result", RejectionCode(err))))
}

func (m *metrics) lot(ctx context.Context, outcome string, tier int) {
	m.lots.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.Int("tier", tier),
	))
}

func (m *metrics) sale(ctx context.Context, price, tier int) {
	m.salePrice.Record(ctx, int64(price), metric.WithAttributes(attribute.Int("tier", tier)))
}
