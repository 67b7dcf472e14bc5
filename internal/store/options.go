package store

import (
	"time"

	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type BatchJobQueryFilter BaseQuerier

func NewBatchJobQueryFilter() *BatchJobQueryFilter {
	return &BatchJobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *BatchJobQueryFilter) ByJobID(jobID string) *BatchJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("job_id = ?", jobID)
	})
	return qf
}

func (qf *BatchJobQueryFilter) ByOwner(owner string) *BatchJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("owner = ?", owner)
	})
	return qf
}

func (qf *BatchJobQueryFilter) ByState(states ...model.BatchJobState) *BatchJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("state IN ?", states)
	})
	return qf
}

func (qf *BatchJobQueryFilter) UpdatedSince(since time.Time) *BatchJobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("last_update >= ?", since)
	})
	return qf
}

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByItemID
	SortByLastUpdateDesc
)

type BatchJobQueryOptions BaseQuerier

func NewBatchJobQueryOptions() *BatchJobQueryOptions {
	return &BatchJobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *BatchJobQueryOptions) WithSortOrder(sort SortOrder) *BatchJobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByItemID:
			return tx.Order("item_id")
		case SortByLastUpdateDesc:
			return tx.Order("last_update DESC").Order("job_id").Order("item_id")
		default:
			return tx
		}
	})
	return o
}

func (o *BatchJobQueryOptions) WithLimit(limit int) *BatchJobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}
