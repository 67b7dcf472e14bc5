package mappers

import (
	api "github.com/callinsights/transcribe-orchestrator/api/v1alpha1"
	"github.com/callinsights/transcribe-orchestrator/internal/store/model"
)

func BatchJobToApi(job *model.BatchJob) api.BatchJob {
	counts := make(map[api.BatchJobStatus]int)
	for state, n := range job.Counts() {
		counts[api.StringToBatchJobStatus(string(state))] = n
	}

	return api.BatchJob{
		JobId:      job.ID,
		Owner:      job.Owner,
		Done:       job.Done(),
		Counts:     counts,
		LastUpdate: job.LastUpdate(),
		Items:      BatchJobItemListToApi(job.Items),
	}
}

func BatchJobItemListToApi(items []model.BatchJobItem) api.BatchJobItemList {
	list := make(api.BatchJobItemList, 0, len(items))
	for _, item := range items {
		list = append(list, api.BatchJobItem{
			JobId:      item.JobID,
			CallId:     item.ItemID,
			Status:     api.StringToBatchJobStatus(string(item.State)),
			LastUpdate: item.LastUpdate,
		})
	}
	return list
}

func CreatedBatchJobToApi(jobID string, ids []string) api.CreateBatchJobResponse {
	return api.CreateBatchJobResponse{
		JobId:   jobID,
		CallIds: ids,
		Status:  api.BatchJobStatusPending,
	}
}
