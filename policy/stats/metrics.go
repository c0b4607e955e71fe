package stats

// Metrics receives per-access outcomes from the stats shim.
// Implementations must be safe for concurrent use.
type Metrics interface {
	Hit()
	Miss()
	// Migrate is called for every promotion; replaced reports that a
	// resident block had to make room.
	Migrate(replaced bool)
	// WouldBlock is called when a non-blocking Map hit a held lock.
	WouldBlock()
	// Residency reports the number of resident blocks (sampled on Tick).
	Residency(blocks int)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing.
// It is safe for concurrent use and intended as the default when
// no observability backend is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()          {}
func (NoopMetrics) Miss()         {}
func (NoopMetrics) Migrate(bool)  {}
func (NoopMetrics) WouldBlock()   {}
func (NoopMetrics) Residency(int) {}

// Ensure NoopMetrics implements the Metrics interface at compile time.
var _ Metrics = NoopMetrics{}
