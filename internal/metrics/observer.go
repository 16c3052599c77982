package metrics

// GatewayObserver receives gateway events. Implementations must be safe
// for concurrent use.
type GatewayObserver interface {
	ObserveRequest(method string, status int, duration float64)
	RecordRefresh(ok bool)
	RecordReplay()
	RecordSessionReset(reason string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveRequest(string, int, float64) {}
func (Nop) RecordRefresh(bool)                  {}
func (Nop) RecordReplay()                       {}
func (Nop) RecordSessionReset(string)           {}
