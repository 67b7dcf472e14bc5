package mappers

import (
	"strings"

	api "github.com/callinsights/transcribe-orchestrator/api/v1alpha1"
)

// CallIDsFromApi trims the requested ids and drops blank entries.
func CallIDsFromApi(req api.CreateBatchJobRequest) []string {
	ids := make([]string, 0, len(req.CallIds))
	for _, id := range req.CallIds {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
