package v1alpha1

func StringToBatchJobStatus(s string) BatchJobStatus {
	switch s {
	case string(BatchJobStatusInProgress):
		return BatchJobStatusInProgress
	case string(BatchJobStatusCompleted):
		return BatchJobStatusCompleted
	case string(BatchJobStatusFailed):
		return BatchJobStatusFailed
	default:
		return BatchJobStatusPending
	}
}
