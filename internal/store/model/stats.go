package model

type Statistics struct {
	// PausedWorkflows is the number of workflows waiting for a notification.
	PausedWorkflows int64
	// PausedByPurpose is keyed by purpose tag.
	PausedByPurpose map[string]int64
	// BatchItemsByState counts batch rows per state, expired rows included.
	BatchItemsByState map[BatchJobState]int64
}
