package elasticsearch

import (
	"context"
	"strings"

	"github.com/cloudtracker/cloudtracker/pkg/action"
	"github.com/cloudtracker/cloudtracker/pkg/backend"
)

// PerformedUsers returns the distinct IAM usernames that appear as actors
// in the configured date range.
func (b *Backend) PerformedUsers(ctx context.Context) (map[string]bool, error) {
	resp, err := b.search(ctx, b.termsQuery("", "", "user_names", b.kw("userIdentity.userName")))
	if err != nil {
		return nil, err
	}

	users := make(map[string]bool)
	for _, bucket := range resp.Aggregations["user_names"].Buckets {
		if bucket.Key == "HIDDEN_DUE_TO_SECURITY_REASONS" {
			// Logged when the console receives a login with a wrong username.
			continue
		}
		users[bucket.Key] = true
	}
	return users, nil
}

// PerformedRoles returns the distinct role names derived from the
// session-issuer field in the configured date range.
func (b *Backend) PerformedRoles(ctx context.Context) (map[string]bool, error) {
	resp, err := b.search(ctx, b.termsQuery("", "", "role_names", b.kw("userIdentity.sessionContext.sessionIssuer.userName")))
	if err != nil {
		return nil, err
	}

	roles := make(map[string]bool)
	for _, bucket := range resp.Aggregations["role_names"].Buckets {
		roles[bucket.Key] = true
	}
	return roles, nil
}

// ActionsByUser returns the distinct actions a user invoked directly.
func (b *Backend) ActionsByUser(ctx context.Context, userArn string) (backend.InvokedSet, error) {
	resp, err := b.search(ctx, b.eventNamesQuery([]map[string]any{matchClause(b.kw("userIdentity.arn"), userArn)}))
	if err != nil {
		return nil, err
	}
	return eventsFromResponse(resp), nil
}

// ActionsByRole returns the distinct actions invoked under a role's session.
func (b *Backend) ActionsByRole(ctx context.Context, roleArn string) (backend.InvokedSet, error) {
	resp, err := b.search(ctx, b.eventNamesQuery([]map[string]any{
		matchClause(b.kw("userIdentity.sessionContext.sessionIssuer.arn"), roleArn),
	}))
	if err != nil {
		return nil, err
	}
	return eventsFromResponse(resp), nil
}

// ActionsByUserInRole returns actions invoked by a user after it assumed
// roleArn, correlated by the session access-key ID minted for that
// assumption (see pkg/backend.Backend's future-work note on sharedEventId).
func (b *Backend) ActionsByUserInRole(ctx context.Context, userArn, roleArn string) (backend.InvokedSet, error) {
	keys, err := b.sessionKeysForAssumption(ctx, matchClause(b.kw("userIdentity.arn"), userArn), roleArn)
	if err != nil {
		return nil, err
	}
	return b.eventsForSessionKeys(ctx, keys, roleArn)
}

// ActionsByRoleInRole returns actions invoked by a role after it assumed
// destRoleArn.
func (b *Backend) ActionsByRoleInRole(ctx context.Context, roleArn, destRoleArn string) (backend.InvokedSet, error) {
	keys, err := b.sessionKeysForAssumption(
		ctx, matchClause(b.kw("userIdentity.sessionContext.sessionIssuer.arn"), roleArn), destRoleArn)
	if err != nil {
		return nil, err
	}
	return b.eventsForSessionKeys(ctx, keys, destRoleArn)
}

// sessionKeysForAssumption buckets the distinct session access-key IDs
// minted by AssumeRole calls matching actorClause into destRoleArn.
func (b *Backend) sessionKeysForAssumption(ctx context.Context, actorClause map[string]any, destRoleArn string) ([]string, error) {
	must, mustNot := b.baseFilters()
	must = append(must,
		matchClause("eventName", "AssumeRole"),
		actorClause,
		matchClause(b.kw("requestParameters.roleArn"), destRoleArn),
	)

	body := map[string]any{
		"size": 0,
		"query": map[string]any{
			"bool": map[string]any{"must": must, "must_not": mustNot},
		},
		"aggs": map[string]any{
			"session_keys": map[string]any{
				"terms": map[string]any{"field": b.kw("responseElements.credentials.accessKeyId"), "size": 10000},
			},
		},
	}

	resp, err := b.search(ctx, body)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(resp.Aggregations["session_keys"].Buckets))
	for _, bucket := range resp.Aggregations["session_keys"].Buckets {
		keys = append(keys, bucket.Key)
	}
	return keys, nil
}

// eventsForSessionKeys unions the events performed under every session key,
// restricted to sessions whose issuer is destRoleArn.
func (b *Backend) eventsForSessionKeys(ctx context.Context, sessionKeys []string, destRoleArn string) (backend.InvokedSet, error) {
	events := make(backend.InvokedSet)
	for _, key := range sessionKeys {
		resp, err := b.search(ctx, b.eventNamesQuery([]map[string]any{
			matchClause("userIdentity.accessKeyId", key),
			matchClause(b.kw("userIdentity.sessionContext.sessionIssuer.arn"), destRoleArn),
		}))
		if err != nil {
			return nil, err
		}
		for a := range eventsFromResponse(resp) {
			events[a] = true
		}
	}
	return events, nil
}

// eventsFromResponse reads the event_names terms aggregation (with its
// nested service_names sub-aggregation) into normalized actions.
func eventsFromResponse(resp *aggregationResponse) backend.InvokedSet {
	events := make(backend.InvokedSet)
	for _, bucket := range resp.Aggregations["event_names"].Buckets {
		if len(bucket.ServiceNames.Buckets) == 0 {
			continue
		}
		service := bucket.ServiceNames.Buckets[0].Key
		service, _, _ = strings.Cut(service, ".")
		events[action.Normalize(service, bucket.Key)] = true
	}
	return events
}
