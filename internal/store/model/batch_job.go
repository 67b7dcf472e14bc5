package model

import "time"

type BatchJobState string

const (
	BatchJobStatePending    BatchJobState = "PENDING"
	BatchJobStateInProgress BatchJobState = "IN_PROGRESS"
	BatchJobStateCompleted  BatchJobState = "COMPLETED"
	BatchJobStateFailed     BatchJobState = "FAILED"
)

func (s BatchJobState) Terminal() bool {
	return s == BatchJobStateCompleted || s == BatchJobStateFailed
}

func (s BatchJobState) Valid() bool {
	switch s {
	case BatchJobStatePending, BatchJobStateInProgress, BatchJobStateCompleted, BatchJobStateFailed:
		return true
	default:
		return false
	}
}

// BatchJobItem is the status row of one unit of work inside a batch job.
// (JobID, ItemID) is the primary key and the unit of mutation.
type BatchJobItem struct {
	JobID      string        `gorm:"primaryKey;column:job_id"`
	ItemID     string        `gorm:"primaryKey;column:item_id"`
	Owner      string        `gorm:"column:owner;not null;index:idx_batch_owner_update,priority:1"`
	State      BatchJobState `gorm:"column:state;not null"`
	LastUpdate time.Time     `gorm:"column:last_update;not null;index:idx_batch_owner_update,priority:2"`
	ExpiresAt  time.Time     `gorm:"column:expires_at;not null;index"`
}

func (BatchJobItem) TableName() string {
	return "batch_job_items"
}

type BatchJob struct {
	ID    string
	Owner string
	Items []BatchJobItem
}

// NewBatchJob groups rows sharing the same job id.
func NewBatchJob(id string, items []BatchJobItem) *BatchJob {
	b := &BatchJob{ID: id, Items: items}
	if len(items) > 0 {
		b.Owner = items[0].Owner
	}
	return b
}

func (b BatchJob) Counts() map[BatchJobState]int {
	counts := map[BatchJobState]int{
		BatchJobStatePending:    0,
		BatchJobStateInProgress: 0,
		BatchJobStateCompleted:  0,
		BatchJobStateFailed:     0,
	}
	for _, i := range b.Items {
		counts[i.State]++
	}
	return counts
}

// Done reports whether every row reached a terminal state.
func (b BatchJob) Done() bool {
	for _, i := range b.Items {
		if !i.State.Terminal() {
			return false
		}
	}
	return len(b.Items) > 0
}

func (b BatchJob) LastUpdate() time.Time {
	var last time.Time
	for _, i := range b.Items {
		if i.LastUpdate.After(last) {
			last = i.LastUpdate
		}
	}
	return last
}
