// Package elasticsearch implements pkg/backend.Backend against CloudTrail
// logs indexed into Elasticsearch, expressing each query operation as a
// bucketed terms aggregation rather than a row scan.
package elasticsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/cloudtracker/cloudtracker/pkg/backend"
)

// Config is the "elasticsearch" section of the CloudTracker config file.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	CloudID   string
	APIKey    string
	Index     string // optional; defaults to "cloudtrail"

	// KeyPrefix, if set, is prepended to Index to form the index (or index
	// pattern) actually queried, for rolling/date-sharded CloudTrail
	// deployments that fan a single logical index out across a
	// prefix-%{+YYYY.MM.dd}-style naming scheme.
	KeyPrefix string

	// TimestampField is the field event time range filters are applied to.
	// Defaults to "eventTime", CloudTrail's own field name.
	TimestampField string
}

// Backend queries CloudTrail logs indexed into an Elasticsearch cluster.
type Backend struct {
	client         *elasticsearch.Client
	index          string
	timestampField string
	dateRange      backend.DateRange

	// majorVersion is the cluster's major version, discovered by Setup.
	// Zero means unknown/not yet probed, which is treated as the modern
	// (>= 5) case.
	majorVersion int
}

// New builds a client for the cluster described by cfg. It performs no
// network calls; call Setup to verify connectivity.
func New(cfg Config, dateRange backend.DateRange) (*Backend, error) {
	index := cfg.Index
	if index == "" {
		index = "cloudtrail"
	}
	index = cfg.KeyPrefix + index

	timestampField := cfg.TimestampField
	if timestampField == "" {
		timestampField = "eventTime"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		CloudID:   cfg.CloudID,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, &backend.SetupError{Op: "opening elasticsearch client", Err: err}
	}

	return &Backend{client: client, index: index, timestampField: timestampField, dateRange: dateRange}, nil
}

// Setup verifies the cluster is reachable and records its major version,
// which baseFilters and the keyword-field helpers use to pick the
// version-appropriate query syntax.
func (b *Backend) Setup(ctx context.Context) error {
	res, err := b.client.Info(b.client.Info.WithContext(ctx))
	if err != nil {
		return &backend.SetupError{Op: "connecting to elasticsearch", Err: err}
	}
	defer res.Body.Close()
	if res.IsError() {
		return &backend.SetupError{Op: "connecting to elasticsearch", Err: fmt.Errorf("cluster returned %s", res.Status())}
	}

	var info struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return &backend.SetupError{Op: "parsing elasticsearch cluster info", Err: err}
	}
	if major, _, _ := strings.Cut(info.Version.Number, "."); major != "" {
		if n, err := strconv.Atoi(major); err == nil {
			b.majorVersion = n
		}
	}
	return nil
}

// fieldSuffix is the mapping suffix CloudTrail's keyword-typed fields carry:
// ".raw" on clusters older than major version 5, ".keyword" otherwise.
func (b *Backend) fieldSuffix() string {
	if b.majorVersion > 0 && b.majorVersion < 5 {
		return ".raw"
	}
	return ".keyword"
}

// kw appends the cluster's keyword-field suffix to field.
func (b *Backend) kw(field string) string {
	return field + b.fieldSuffix()
}

// Teardown is a no-op: the Elasticsearch REST client holds no
// per-query server-side state that needs releasing.
func (b *Backend) Teardown(ctx context.Context) error {
	return nil
}
