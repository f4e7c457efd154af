// Package backend defines the CloudTrail query contract that both the
// Athena (columnar SQL) and Elasticsearch (document-search) implementations
// satisfy, so the rest of CloudTracker never knows which store it's talking to.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudtracker/cloudtracker/pkg/action"
)

// InvokedSet is the set of normalized Actions a principal is recorded as
// having actually invoked.
type InvokedSet map[action.Action]bool

// Backend is the small capability set a CloudTrail store must expose: six
// query operations plus setup/teardown lifecycle. Implementations never
// interpret IAM or policy data — they only answer "what happened".
//
// Future work: ActionsByUserInRole/ActionsByRoleInRole correlate a session to
// its assuming principal via userIdentity.accessKeyId. AWS documents
// sharedEventId as a more robust correlator for cross-account activity; using
// it would require a third query shape this interface doesn't define, and is
// left for a future revision.
type Backend interface {
	// Setup prepares the backend for querying (table/database creation,
	// partition bootstrap, connection checks). Idempotent; safe to call on
	// every run.
	Setup(ctx context.Context) error

	// Teardown releases any resources acquired by Setup or by query
	// execution, best-effort. Called once at the end of a run.
	Teardown(ctx context.Context) error

	// PerformedUsers returns the distinct IAM usernames that appear as
	// actors in the configured date range.
	PerformedUsers(ctx context.Context) (map[string]bool, error)

	// PerformedRoles returns the distinct role names derived from the
	// session-issuer field in the configured date range.
	PerformedRoles(ctx context.Context) (map[string]bool, error)

	// ActionsByUser returns the distinct actions a user invoked directly
	// (not via an assumed role).
	ActionsByUser(ctx context.Context, userArn string) (InvokedSet, error)

	// ActionsByRole returns the distinct actions invoked under a role's
	// session, regardless of who assumed it.
	ActionsByRole(ctx context.Context, roleArn string) (InvokedSet, error)

	// ActionsByUserInRole returns the distinct actions invoked by a user
	// after it assumed roleArn.
	ActionsByUserInRole(ctx context.Context, userArn, roleArn string) (InvokedSet, error)

	// ActionsByRoleInRole returns the distinct actions invoked by a role
	// after it assumed destRoleArn.
	ActionsByRoleInRole(ctx context.Context, roleArn, destRoleArn string) (InvokedSet, error)
}

// DateRange is the inclusive [Start, End] window a Backend restricts its
// queries to.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// SetupError reports a failure preparing the backend for queries: database
// or table creation failed, or the configured storage location is empty or
// unreachable.
type SetupError struct {
	Op  string
	Err error
}

func (e *SetupError) Error() string { return fmt.Sprintf("backend setup: %s: %v", e.Op, e.Err) }
func (e *SetupError) Unwrap() error { return e.Err }

// QueryError reports a query that reached a terminal failure state (engine
// returned FAILED/CANCELLED, or a search request errored).
type QueryError struct {
	Query  string
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("backend query failed: %s (query: %s)", e.Reason, e.Query)
}

// TimeoutError reports that a caller-supplied context deadline elapsed
// while a query was still polling for completion.
type TimeoutError struct {
	Query string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend query timed out waiting for completion (query: %s)", e.Query)
}
