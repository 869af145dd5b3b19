package bridge

// InstanceCallback is the lifecycle notification sink an instance drives.
// OnBatchComplete fires after the script context drains one batch of work;
// the pending-call pair fires symmetrically around each native call issued
// from script. Implementations must not block: they run inline on the
// instance's execution contexts.
type InstanceCallback interface {
	OnBatchComplete()
	IncrementPendingCalls()
	DecrementPendingCalls()
}

// NoopInstanceCallback ignores every notification. It is the callback
// GetInstance wires in; richer hosts substitute their own implementation
// when constructing instances directly to add back-pressure or
// shutdown-quiescence logic.
type NoopInstanceCallback struct{}

func (NoopInstanceCallback) OnBatchComplete()       {}
func (NoopInstanceCallback) IncrementPendingCalls() {}
func (NoopInstanceCallback) DecrementPendingCalls() {}
