package elasticsearch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cloudtracker/cloudtracker/pkg/backend"
)

func testBackend() *Backend {
	return &Backend{
		index:          "cloudtrail",
		timestampField: "eventTime",
		dateRange: backend.DateRange{
			Start: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestBaseFilters(t *testing.T) {
	b := testBackend()
	must, mustNot := b.baseFilters()

	if len(must) != 1 {
		t.Fatalf("expected exactly one base must clause, got %d", len(must))
	}
	rangeClause, ok := must[0]["range"].(map[string]any)
	if !ok {
		t.Fatal("expected a range clause")
	}
	eventTime, ok := rangeClause["eventTime"].(map[string]any)
	if !ok {
		t.Fatal("expected eventTime range")
	}
	if eventTime["gte"] != "2024-01-01" || eventTime["lte"] != "2024-12-31" {
		t.Errorf("unexpected date bounds: %v", eventTime)
	}

	if len(mustNot) != 1 {
		t.Fatalf("expected exactly one must_not clause, got %d", len(mustNot))
	}
	existsClause, ok := mustNot[0]["exists"].(map[string]any)
	if !ok || existsClause["field"] != "errorCode" {
		t.Errorf("expected must_not exists errorCode, got %v", mustNot[0])
	}
}

func TestTermsQuery_IncludesMatchWhenFieldGiven(t *testing.T) {
	b := testBackend()
	body := b.termsQuery("userIdentity.arn.keyword", "arn:aws:iam::123:user/alice", "user_names", "userIdentity.userName.keyword")

	query := body["query"].(map[string]any)["bool"].(map[string]any)
	must := query["must"].([]map[string]any)
	if len(must) != 2 {
		t.Fatalf("expected base filter + match clause, got %d clauses", len(must))
	}

	aggs := body["aggs"].(map[string]any)["user_names"].(map[string]any)["terms"].(map[string]any)
	if aggs["field"] != "userIdentity.userName.keyword" {
		t.Errorf("unexpected bucket field: %v", aggs["field"])
	}
}

func TestBaseFilters_PreV2UsesMissingFilter(t *testing.T) {
	b := testBackend()
	b.majorVersion = 1

	must, mustNot := b.baseFilters()
	if mustNot != nil {
		t.Fatalf("expected no must_not clauses on a pre-2.0 cluster, got %v", mustNot)
	}
	if len(must) != 2 {
		t.Fatalf("expected date range + missing-field clause, got %d", len(must))
	}
	missingClause, ok := must[1]["missing"].(map[string]any)
	if !ok || missingClause["field"] != "errorCode" {
		t.Errorf("expected missing errorCode clause, got %v", must[1])
	}
}

func TestFieldSuffix(t *testing.T) {
	cases := []struct {
		majorVersion int
		want         string
	}{
		{0, ".keyword"},
		{1, ".raw"},
		{4, ".raw"},
		{5, ".keyword"},
		{8, ".keyword"},
	}
	for _, c := range cases {
		b := testBackend()
		b.majorVersion = c.majorVersion
		if got := b.fieldSuffix(); got != c.want {
			t.Errorf("majorVersion %d: fieldSuffix() = %q, want %q", c.majorVersion, got, c.want)
		}
	}
}

func TestNew_KeyPrefixAndTimestampField(t *testing.T) {
	b, err := New(Config{
		Index:          "cloudtrail",
		KeyPrefix:      "acme-",
		TimestampField: "@timestamp",
	}, backend.DateRange{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.index != "acme-cloudtrail" {
		t.Errorf("index = %q, want %q", b.index, "acme-cloudtrail")
	}
	if b.timestampField != "@timestamp" {
		t.Errorf("timestampField = %q, want %q", b.timestampField, "@timestamp")
	}
}

func TestNew_Defaults(t *testing.T) {
	b, err := New(Config{}, backend.DateRange{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.index != "cloudtrail" {
		t.Errorf("index = %q, want default %q", b.index, "cloudtrail")
	}
	if b.timestampField != "eventTime" {
		t.Errorf("timestampField = %q, want default %q", b.timestampField, "eventTime")
	}
}

func TestMatchClause(t *testing.T) {
	clause := matchClause("eventName", "AssumeRole")
	match, ok := clause["match"].(map[string]any)
	if !ok || match["eventName"] != "AssumeRole" {
		t.Errorf("unexpected match clause: %v", clause)
	}
}

func TestEventsFromResponse(t *testing.T) {
	raw := `{
		"aggregations": {
			"event_names": {
				"buckets": [
					{
						"key": "GetBucketAcl",
						"service_names": {"buckets": [{"key": "s3.amazonaws.com"}]}
					}
				]
			}
		}
	}`

	var resp aggregationResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	events := eventsFromResponse(&resp)
	if !events["s3:getbucketacl"] {
		t.Fatalf("expected s3:getbucketacl, got %v", events)
	}
}
