package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloudtracker/cloudtracker/pkg/backend"
)

// baseFilters returns the must/must_not clauses every query in a run
// shares: the configured date range, and "only successful calls" (no
// errorCode field present). The error filter's shape depends on the
// cluster's major version: "exists" as a must_not clause from version 2
// onward, or the older "missing" filter (as a must clause) before it.
func (b *Backend) baseFilters() (must []map[string]any, mustNot []map[string]any) {
	must = []map[string]any{
		{"range": map[string]any{b.timestampField: map[string]any{
			"gte": b.dateRange.Start.Format("2006-01-02"),
			"lte": b.dateRange.End.Format("2006-01-02"),
		}}},
	}

	if b.majorVersion > 0 && b.majorVersion < 2 {
		must = append(must, map[string]any{"missing": map[string]any{"field": "errorCode"}})
		return must, nil
	}

	mustNot = []map[string]any{
		{"exists": map[string]any{"field": "errorCode"}},
	}
	return must, mustNot
}

// termsQuery builds a search body matching the shared base filters plus an
// additional exact-match clause on field, with a terms aggregation named
// aggName bucketing on bucketField.
func (b *Backend) termsQuery(field, value, aggName, bucketField string) map[string]any {
	must, mustNot := b.baseFilters()
	if field != "" {
		must = append(must, map[string]any{"match": map[string]any{field: value}})
	}

	return map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{
				"must":     must,
				"must_not": mustNot,
			},
		},
		"aggs": map[string]any{
			aggName: map[string]any{
				"terms": map[string]any{"field": bucketField, "size": 5000},
			},
		},
	}
}

// eventNamesQuery is termsQuery's shape for the event_names/service_names
// nested aggregation every ActionsBy* operation uses.
func (b *Backend) eventNamesQuery(extraMust []map[string]any) map[string]any {
	must, mustNot := b.baseFilters()
	must = append(must, extraMust...)

	return map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{
				"must":     must,
				"must_not": mustNot,
			},
		},
		"aggs": map[string]any{
			"event_names": map[string]any{
				"terms": map[string]any{"field": b.kw("eventName"), "size": 5000},
				"aggs": map[string]any{
					"service_names": map[string]any{
						"terms": map[string]any{"field": b.kw("eventSource"), "size": 1},
					},
				},
			},
		},
	}
}

func matchClause(field, value string) map[string]any {
	return map[string]any{"match": map[string]any{field: value}}
}

// aggregationResponse is the subset of an Elasticsearch _search response
// body this backend reads: top-level bucket aggregations, optionally with
// one level of sub-aggregation.
type aggregationResponse struct {
	Aggregations map[string]struct {
		Buckets []struct {
			Key           string `json:"key"`
			ServiceNames  struct {
				Buckets []struct {
					Key string `json:"key"`
				} `json:"buckets"`
			} `json:"service_names"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// search executes body against b.index and decodes the aggregation
// response.
func (b *Backend) search(ctx context.Context, body map[string]any) (*aggregationResponse, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, &backend.QueryError{Reason: err.Error()}
	}

	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(b.index),
		b.client.Search.WithBody(bytes.NewReader(encoded)),
	)
	if err != nil {
		return nil, &backend.QueryError{Query: string(encoded), Reason: err.Error()}
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, &backend.QueryError{Query: string(encoded), Reason: fmt.Sprintf("elasticsearch returned %s", res.Status())}
	}

	var parsed aggregationResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, &backend.QueryError{Query: string(encoded), Reason: err.Error()}
	}
	return &parsed, nil
}
