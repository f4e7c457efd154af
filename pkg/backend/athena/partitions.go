package athena

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/cloudtracker/cloudtracker/pkg/backend"
)

// ensurePartitions checks which (region, year, month) partitions already
// exist for the past numMonthsForPartitions months and issues one batched
// ALTER TABLE ... ADD per month for whatever is missing across all regions.
// Submission is parallelized (each month's ALTER TABLE is independent of the
// others); completion is awaited as a batch.
func (b *Backend) ensurePartitions(ctx context.Context) error {
	slog.Info("checking partitions for the trailing months", slog.Int("months", numMonthsForPartitions))

	existing, err := b.existingPartitions(ctx)
	if err != nil {
		return err
	}

	regions, err := b.availableRegions(ctx)
	if err != nil {
		return err
	}

	queries := b.missingPartitionQueries(existing, regions)
	if len(queries) == 0 {
		slog.Info("all partitions already present")
		return nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ids      []string
		firstErr error
	)
	for _, query := range queries {
		wg.Add(1)
		go func(query string) {
			defer wg.Done()
			id, err := b.submitQuery(ctx, query, b.database)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			ids = append(ids, id)
		}(query)
	}
	wg.Wait()
	if firstErr != nil {
		return &backend.SetupError{Op: "submitting partition queries", Err: firstErr}
	}

	if err := b.waitForBatch(ctx, ids); err != nil {
		return &backend.SetupError{Op: "creating partitions", Err: err}
	}
	return nil
}

func (b *Backend) existingPartitions(ctx context.Context) (map[string]bool, error) {
	rows, err := b.runQueryWithHeader(ctx, fmt.Sprintf("SHOW PARTITIONS %s", b.table), b.database, false)
	if err != nil {
		return nil, &backend.SetupError{Op: "listing existing partitions", Err: err}
	}

	set := make(map[string]bool, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			set[row[0]] = true
		}
	}
	return set, nil
}

// availableRegions enumerates every AWS region, the way the source uses
// boto3's get_available_regions('ec2') — any service would do; ec2 is
// available in every region so it's a convenient anchor.
func (b *Backend) availableRegions(ctx context.Context) ([]string, error) {
	resp, err := b.ec2Client.DescribeRegions(ctx, &ec2.DescribeRegionsInput{
		AllRegions: aws.Bool(true),
	})
	if err != nil {
		return nil, &backend.SetupError{Op: "listing AWS regions", Err: err}
	}

	regions := make([]string, 0, len(resp.Regions))
	for _, r := range resp.Regions {
		regions = append(regions, aws.ToString(r.RegionName))
	}
	return regions, nil
}

// missingPartitionQueries builds one ALTER TABLE ... ADD statement per
// trailing month that has any missing (region, year, month) partitions,
// batching every missing region's PARTITION clause for that month together.
func (b *Backend) missingPartitionQueries(existing map[string]bool, regions []string) []string {
	var queries []string

	now := time.Now()
	for monthsAgo := 0; monthsAgo < numMonthsForPartitions; monthsAgo++ {
		target := now.AddDate(0, -monthsAgo, 0)
		year := target.Year()
		month := fmt.Sprintf("%02d", int(target.Month()))

		var clauses strings.Builder
		for _, region := range regions {
			key := fmt.Sprintf("region=%s/year=%d/month=%s", region, year, month)
			if existing[key] {
				continue
			}
			fmt.Fprintf(&clauses, "PARTITION (region='%s',year='%d',month='%s') location '%s/%s/%d/%s/'\n",
				region, year, month, b.logPath, region, year, month)
		}

		if clauses.Len() == 0 {
			continue
		}
		queries = append(queries, fmt.Sprintf("ALTER TABLE %s ADD %s", b.table, clauses.String()))
	}

	return queries
}
