package alert

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes alerts to the structured log. It is the default sink;
// anything else plugs in behind the Notifier interface.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: logger}
}

// Notify logs the alert. Strong alerts log at warn so they stand out in a
// level-filtered stream.
func (n *LogNotifier) Notify(_ context.Context, a *Alert) error {
	ev := n.log.Info()
	if a.Level == LevelStrong {
		ev = n.log.Warn()
	}
	ev.Str("alert_id", a.ID).
		Str("level", string(a.Level)).
		Str("chain", string(a.Chain)).
		Str("market_type", string(a.MarketType)).
		Str("address", a.Address).
		Str("target", a.TargetSide).
		Int("score", a.Score).
		Strs("factors", a.Factors).
		Str("headline", a.Headline).
		Msg(a.Body)
	return nil
}
