package booking

// Status is the appointment lifecycle state. The string value is what gets
// persisted, so these tokens are stable.
type Status string

const (
	StatusWaiting                Status = "Waiting"
	StatusReady                  Status = "Ready"
	StatusWaitingForPrescription Status = "WaitingForPrescription"
	StatusCompleted              Status = "Completed"
)

// statusOrder is the single legal path through the lifecycle. Every state has
// at most one successor and no transition skips a state.
var statusOrder = map[Status]Status{
	StatusWaiting:                StatusReady,
	StatusReady:                  StatusWaitingForPrescription,
	StatusWaitingForPrescription: StatusCompleted,
}

// Next returns the only state reachable from s. Completed has no successor.
func (s Status) Next() (Status, bool) {
	next, ok := statusOrder[s]
	return next, ok
}

// CanAdvanceTo reports whether target is the immediate successor of s.
func (s Status) CanAdvanceTo(target Status) bool {
	next, ok := s.Next()
	return ok && next == target
}
