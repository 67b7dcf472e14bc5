package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/thoas/go-funk"
)

const lookback = "now-1y"

// CallMetadata is the subset of a call document forwarded with each unit of
// work.
type CallMetadata struct {
	SID                 string `json:"sid,omitempty"`
	OriginalContactID   string `json:"original_contact_id"`
	Duration            int    `json:"duration"`
	TotalHoldTime       int    `json:"total_hold_time"`
	StartDatetime       string `json:"start_datetime"`
	EndDatetime         string `json:"end_datetime"`
	AgentPbxID          string `json:"agent_pbxid"`
	Extension           string `json:"extension"`
	AgentFullName       string `json:"agent_full_name"`
	AgentEmail          string `json:"agent_email"`
	Language            string `json:"language"`
	Region              string `json:"region"`
	DistributorNumber   string `json:"distributor_number"`
	CallContext         string `json:"call_context"`
	LineOfBusiness      string `json:"line_of_business"`
	VideoRecorded       bool   `json:"video_recorded"`
	CustomerPhoneNumber string `json:"customer_phone_number"`
	CallDirection       string `json:"call_direction"`
	OrganizationUnit    string `json:"organization_unit"`
	QueueID             string `json:"queue_id"`
	CompanyNumber       string `json:"company_number"`
	WavURL              string `json:"wav_url,omitempty"`
	FilenamePrefix      string `json:"filename_prefix"`
	CreatedAt           string `json:"created_at_"`
}

var callMetadataFields = []string{
	"original_contact_id", "duration", "total_hold_time", "start_datetime",
	"end_datetime", "agent_pbxid", "extension", "agent_full_name", "agent_email",
	"language", "region", "distributor_number", "call_context",
	"line_of_business", "video_recorded", "customer_phone_number",
	"call_direction", "organization_unit", "queue_id", "company_number",
	"filename_prefix", "created_at_",
}

// ValidateUserAccess runs the early access check: at least one access rule
// must exist for one of the caller's groups.
func (c *Client) ValidateUserAccess(ctx context.Context, accessIndex string, groups []string) (bool, error) {
	if len(groups) == 0 {
		return false, nil
	}
	query := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"terms": map[string]any{"user_group": groups}},
				},
			},
		},
		"size": 1,
	}

	resp, err := c.Search(ctx, accessIndex, query)
	if err != nil {
		return false, err
	}
	if resp.Hits.Total.Value == 0 {
		c.log.Warnw("caller groups have no transcription access", "groups", groups)
		return false, nil
	}
	return true, nil
}

// InvalidIDs returns the requested ids the index does not confirm as
// eligible: recent, not yet transcribed and visible through restriction.
// The result keeps request order.
func (c *Client) InvalidIDs(ctx context.Context, index string, ids []string, restriction map[string]any) ([]string, error) {
	must := []any{
		map[string]any{"range": map[string]any{"created_at_": map[string]any{"gte": lookback}}},
		map[string]any{"terms": map[string]any{"_id": ids}},
		map[string]any{"match": map[string]any{"transcribed": false}},
	}
	if len(restriction) > 0 {
		must = append(must, restriction)
	}
	query := map[string]any{
		"_source": []string{"_id"},
		"query":   map[string]any{"bool": map[string]any{"must": must}},
		"size":    len(ids),
	}

	resp, err := c.Search(ctx, index, query)
	if err != nil {
		return nil, err
	}

	found := make([]string, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		found = append(found, h.ID)
	}
	invalid, _ := funk.DifferenceString(ids, found)
	return invalid, nil
}

// CallMetadata fetches the metadata of the given calls. Each record carries
// its document id as SID.
func (c *Client) CallMetadata(ctx context.Context, index string, ids []string) ([]CallMetadata, error) {
	query := map[string]any{
		"_source": callMetadataFields,
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"range": map[string]any{"created_at_": map[string]any{"gte": lookback}}},
					map[string]any{"ids": map[string]any{"values": ids}},
					map[string]any{"match": map[string]any{"transcribed": false}},
				},
			},
		},
		"size": len(ids),
	}

	resp, err := c.Search(ctx, index, query)
	if err != nil {
		return nil, err
	}

	calls := make([]CallMetadata, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		var m CallMetadata
		if err := json.Unmarshal(h.Source, &m); err != nil {
			return nil, fmt.Errorf("decoding call %s: %w", h.ID, err)
		}
		m.SID = h.ID
		calls = append(calls, m)
	}
	return calls, nil
}

// Group prefixes granting visibility on a slice of the call index.
const (
	groupAllCalls          = "transcribe-all-calls"
	groupDistributorPrefix = "distributor-"
	groupLinePrefix        = "lob-"
)

// AccessRestriction builds the filter limiting a caller to the calls their
// groups grant. Callers with the all-calls group get no filter; callers with
// no granting group get a filter that matches nothing.
func AccessRestriction(groups []string) map[string]any {
	if funk.ContainsString(groups, groupAllCalls) {
		return nil
	}

	var distributors, lines []string
	for _, g := range groups {
		switch {
		case strings.HasPrefix(g, groupDistributorPrefix):
			distributors = append(distributors, strings.TrimPrefix(g, groupDistributorPrefix))
		case strings.HasPrefix(g, groupLinePrefix):
			lines = append(lines, strings.TrimPrefix(g, groupLinePrefix))
		}
	}
	sort.Strings(distributors)
	sort.Strings(lines)

	should := []any{}
	if len(distributors) > 0 {
		should = append(should, map[string]any{"terms": map[string]any{"distributor_number": distributors}})
	}
	if len(lines) > 0 {
		should = append(should, map[string]any{"terms": map[string]any{"line_of_business": lines}})
	}
	if len(should) == 0 {
		return map[string]any{"bool": map[string]any{"must_not": []any{map[string]any{"match_all": map[string]any{}}}}}
	}
	return map[string]any{"bool": map[string]any{"should": should, "minimum_should_match": 1}}
}
