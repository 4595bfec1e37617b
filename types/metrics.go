package types

// Metrics receives one call per cache event.
type Metrics interface {

	// Hit is called when a lookup finds a live entry in memory.
	Hit()

	// Miss is called when a lookup finds nothing in memory.
	Miss()

	// Eviction is called when an entry is dropped to honour the max size.
	Eviction()

	// Expire is called when an entry transitions from present to expired.
	Expire()

	// Load is called when a miss is served from durable storage.
	Load()
}

// NoopMetrics ignores every event. The engine falls back to it so callers never
// need nil checks.
type NoopMetrics struct{}

func (NoopMetrics) Hit()      {}
func (NoopMetrics) Miss()     {}
func (NoopMetrics) Eviction() {}
func (NoopMetrics) Expire()   {}
func (NoopMetrics) Load()     {}
