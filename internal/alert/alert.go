// Package alert turns per-trade window, FDV, and whale signals into graded
// alerts and hands them to a notifier.
package alert

import (
	"context"

	"dexwatch/internal/domain"
)

// Level grades an emitted alert.
type Level string

// Alert levels.
const (
	LevelNormal Level = "normal"
	LevelStrong Level = "strong"
)

// Alert is one emitted notification.
type Alert struct {
	ID         string
	Level      Level
	Chain      domain.Chain
	MarketType domain.MarketType
	Address    string
	Token0     string
	Token1     string
	TargetSide string
	Headline   string
	Body       string

	Score       int
	Factors     []string
	EmittedAtMs int64
}

// Notifier is the outbound alert sink. Delivery is synchronous from the
// evaluator; formatting and transport beyond this interface are external.
type Notifier interface {
	Notify(ctx context.Context, a *Alert) error
}

// Request carries one trade's evaluation inputs. Market is a snapshot taken
// at dispatch time; metadata (liquidity, last mint) rides along in it.
type Request struct {
	Market       domain.Market
	TargetToken0 bool
	TradeUSD     float64
	IsBuy        bool
}
