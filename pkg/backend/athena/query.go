package athena

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/cloudtracker/cloudtracker/pkg/backend"
)

// pollInterval is how long runQuery/waitForBatch sleep between state checks.
var pollInterval = time.Second

// runQuery submits query, blocks until it succeeds, and returns its result
// rows with the header row discarded. database may be empty to omit the
// QueryExecutionContext (used for statements, like CREATE DATABASE, that
// must run outside any database context).
func (b *Backend) runQuery(ctx context.Context, query, database string) ([][]string, error) {
	return b.runQueryWithHeader(ctx, query, database, true)
}

// runQueryWithHeader is runQuery with control over header-row skipping: Athena's
// "SHOW PARTITIONS" results, unlike SELECT results, carry no header row.
func (b *Backend) runQueryWithHeader(ctx context.Context, query, database string, skipHeader bool) ([][]string, error) {
	id, err := b.submitQuery(ctx, query, database)
	if err != nil {
		return nil, err
	}
	if err := b.waitForQuery(ctx, id); err != nil {
		return nil, err
	}
	return b.fetchResults(ctx, id, skipHeader)
}

func (b *Backend) submitQuery(ctx context.Context, query, database string) (string, error) {
	slog.Debug("submitting athena query", slog.String("query", query))

	input := &athena.StartQueryExecutionInput{
		QueryString: aws.String(query),
		ResultConfiguration: &types.ResultConfiguration{
			OutputLocation: aws.String(b.outputBucket),
		},
	}
	if database != "" {
		input.QueryExecutionContext = &types.QueryExecutionContext{Database: aws.String(database)}
	}

	resp, err := b.athenaClient.StartQueryExecution(ctx, input)
	if err != nil {
		return "", &backend.QueryError{Query: query, Reason: err.Error()}
	}
	id := aws.ToString(resp.QueryExecutionId)
	b.outstandingMu.Lock()
	b.outstandingQueryIDs = append(b.outstandingQueryIDs, id)
	b.outstandingMu.Unlock()
	return id, nil
}

// waitForQuery polls a single query execution until it reaches SUCCEEDED,
// FAILED, or CANCELLED, or ctx is cancelled.
func (b *Backend) waitForQuery(ctx context.Context, queryExecutionID string) error {
	for {
		resp, err := b.athenaClient.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: aws.String(queryExecutionID),
		})
		if err != nil {
			return &backend.QueryError{Query: queryExecutionID, Reason: err.Error()}
		}

		status := resp.QueryExecution.Status
		switch status.State {
		case types.QueryExecutionStateSucceeded:
			b.forgetOutstanding(queryExecutionID)
			return nil
		case types.QueryExecutionStateFailed, types.QueryExecutionStateCancelled:
			b.forgetOutstanding(queryExecutionID)
			return &backend.QueryError{Query: queryExecutionID, Reason: aws.ToString(status.StateChangeReason)}
		}

		slog.Debug("sleeping while query completes", slog.String("query_execution_id", queryExecutionID))
		select {
		case <-ctx.Done():
			return &backend.TimeoutError{Query: queryExecutionID}
		case <-time.After(pollInterval):
		}
	}
}

// waitForBatch polls a set of outstanding query executions together until
// every one has reached a terminal state, retiring completed IDs as they
// finish. Mirrors the source's wait_for_query_batch_to_complete.
func (b *Backend) waitForBatch(ctx context.Context, ids []string) error {
	remaining := make(map[string]bool, len(ids))
	for _, id := range ids {
		remaining[id] = true
	}

	for len(remaining) > 0 {
		batch := make([]string, 0, len(remaining))
		for id := range remaining {
			batch = append(batch, id)
		}

		resp, err := b.athenaClient.BatchGetQueryExecution(ctx, &athena.BatchGetQueryExecutionInput{
			QueryExecutionIds: batch,
		})
		if err != nil {
			return &backend.QueryError{Reason: err.Error()}
		}

		for _, qe := range resp.QueryExecutions {
			id := aws.ToString(qe.QueryExecutionId)
			switch qe.Status.State {
			case types.QueryExecutionStateSucceeded:
				delete(remaining, id)
				b.forgetOutstanding(id)
			case types.QueryExecutionStateFailed, types.QueryExecutionStateCancelled:
				delete(remaining, id)
				b.forgetOutstanding(id)
				return &backend.QueryError{Query: id, Reason: aws.ToString(qe.Status.StateChangeReason)}
			}
		}

		if len(remaining) == 0 {
			return nil
		}
		slog.Debug("sleeping while batch completes", slog.Int("remaining", len(remaining)))
		select {
		case <-ctx.Done():
			return &backend.TimeoutError{Query: "batch"}
		case <-time.After(pollInterval):
		}
	}
	return nil
}

func (b *Backend) forgetOutstanding(id string) {
	b.outstandingMu.Lock()
	defer b.outstandingMu.Unlock()
	for i, existing := range b.outstandingQueryIDs {
		if existing == id {
			b.outstandingQueryIDs = append(b.outstandingQueryIDs[:i], b.outstandingQueryIDs[i+1:]...)
			return
		}
	}
}

// fetchResults pages through a completed query's results, optionally
// discarding the header row of the first page.
func (b *Backend) fetchResults(ctx context.Context, queryExecutionID string, skipHeader bool) ([][]string, error) {
	var rows [][]string
	rowCount := 0

	paginator := athena.NewGetQueryResultsPaginator(b.athenaClient, &athena.GetQueryResultsInput{
		QueryExecutionId: aws.String(queryExecutionID),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, &backend.QueryError{Query: queryExecutionID, Reason: err.Error()}
		}
		for _, row := range page.ResultSet.Rows {
			rowCount++
			if rowCount == 1 && skipHeader {
				continue
			}
			rows = append(rows, extractRowValues(row))
		}
	}
	return rows, nil
}

func extractRowValues(row types.Row) []string {
	values := make([]string, len(row.Data))
	for i, col := range row.Data {
		values[i] = aws.ToString(col.VarCharValue)
	}
	return values
}
