// Package monitor contains the analytics units that turn normalized
// events into deduplicated alerts.
package monitor

// cooldownGate suppresses repeat alerts for the same tag until the
// cooldown has elapsed. Tags combine the key and the alert kind, e.g.
// "binance:BTC/USDT:24h". Timestamps are event time in epoch ms, which
// keeps replayed streams deterministic.
type cooldownGate struct {
	cooldownMs int64
	last       map[string]int64
}

func newCooldownGate(cooldownMs int64) *cooldownGate {
	return &cooldownGate{
		cooldownMs: cooldownMs,
		last:       make(map[string]int64),
	}
}

// allow reports whether an alert for tag may fire at now, and records
// the emission when it may.
func (g *cooldownGate) allow(tag string, now int64) bool {
	if last, ok := g.last[tag]; ok && now-last < g.cooldownMs {
		return false
	}
	g.last[tag] = now
	return true
}
