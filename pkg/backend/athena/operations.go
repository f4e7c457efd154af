package athena

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudtracker/cloudtracker/pkg/action"
	"github.com/cloudtracker/cloudtracker/pkg/backend"
)

// PerformedUsers returns the distinct IAM usernames that appear as actors
// in the configured date range.
func (b *Backend) PerformedUsers(ctx context.Context) (map[string]bool, error) {
	query := fmt.Sprintf("select distinct userIdentity.userName from %s where %s", b.table, b.searchFilter)
	rows, err := b.runQuery(ctx, query, b.database)
	if err != nil {
		return nil, err
	}

	users := make(map[string]bool)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		name := row[0]
		if name == "HIDDEN_DUE_TO_SECURITY_REASONS" {
			// Logged when the console receives a login with a wrong username.
			continue
		}
		users[name] = true
	}
	return users, nil
}

// PerformedRoles returns the distinct role names derived from the
// session-issuer field in the configured date range.
func (b *Backend) PerformedRoles(ctx context.Context) (map[string]bool, error) {
	query := fmt.Sprintf(
		"select distinct userIdentity.sessionContext.sessionIssuer.userName from %s where %s",
		b.table, b.searchFilter)
	rows, err := b.runQuery(ctx, query, b.database)
	if err != nil {
		return nil, err
	}

	roles := make(map[string]bool)
	for _, row := range rows {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		roles[row[0]] = true
	}
	return roles, nil
}

// ActionsByUser returns the distinct actions a user invoked directly.
func (b *Backend) ActionsByUser(ctx context.Context, userArn string) (backend.InvokedSet, error) {
	query := fmt.Sprintf(
		"select distinct (eventsource, eventname) from %s where (userIdentity.arn = '%s') and %s",
		b.table, userArn, b.searchFilter)
	return b.eventsFromQuery(ctx, query)
}

// ActionsByRole returns the distinct actions invoked under a role's session.
func (b *Backend) ActionsByRole(ctx context.Context, roleArn string) (backend.InvokedSet, error) {
	query := fmt.Sprintf(
		"select distinct (eventsource, eventname) from %s where (userIdentity.sessionContext.sessionIssuer.arn = '%s') and %s",
		b.table, roleArn, b.searchFilter)
	return b.eventsFromQuery(ctx, query)
}

// ActionsByUserInRole returns actions invoked by a user after it assumed
// roleArn, correlated by the session access-key ID minted for that
// assumption (see pkg/backend.Backend's future-work note on sharedEventId).
func (b *Backend) ActionsByUserInRole(ctx context.Context, userArn, roleArn string) (backend.InvokedSet, error) {
	sessionKeys, err := b.sessionKeysForAssumption(ctx, fmt.Sprintf("userIdentity.arn = '%s'", userArn), roleArn)
	if err != nil {
		return nil, err
	}
	return b.eventsForSessionKeys(ctx, sessionKeys, roleArn)
}

// ActionsByRoleInRole returns actions invoked by a role after it assumed
// destRoleArn.
func (b *Backend) ActionsByRoleInRole(ctx context.Context, roleArn, destRoleArn string) (backend.InvokedSet, error) {
	sessionKeys, err := b.sessionKeysForAssumption(
		ctx, fmt.Sprintf("userIdentity.sessionContext.sessionIssuer.arn = '%s'", roleArn), destRoleArn)
	if err != nil {
		return nil, err
	}
	return b.eventsForSessionKeys(ctx, sessionKeys, destRoleArn)
}

// sessionKeysForAssumption finds every responseElements.credentials.accessKeyId
// minted by an AssumeRole call matching actorFilter into roleArn.
func (b *Backend) sessionKeysForAssumption(ctx context.Context, actorFilter, roleArn string) ([]string, error) {
	query := fmt.Sprintf(
		"select distinct json_extract_scalar(responseelements, '$.credentials.accessKeyId') "+
			"from %s where eventname = 'AssumeRole' and (%s) and requestparameters like '%%\"roleArn\":\"%s\"%%' and %s",
		b.table, actorFilter, roleArn, b.searchFilter)

	rows, err := b.runQuery(ctx, query, b.database)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 && row[0] != "" {
			keys = append(keys, row[0])
		}
	}
	return keys, nil
}

// eventsForSessionKeys unions the events performed under every session key,
// restricted to sessions whose issuer is destRoleArn.
func (b *Backend) eventsForSessionKeys(ctx context.Context, sessionKeys []string, destRoleArn string) (backend.InvokedSet, error) {
	events := make(backend.InvokedSet)
	for _, key := range sessionKeys {
		query := fmt.Sprintf(
			"select distinct (eventsource, eventname) from %s where "+
				"(userIdentity.accessKeyId = '%s') and (userIdentity.sessionContext.sessionIssuer.arn = '%s') and %s",
			b.table, key, destRoleArn, b.searchFilter)
		inner, err := b.eventsFromQuery(ctx, query)
		if err != nil {
			return nil, err
		}
		for a := range inner {
			events[a] = true
		}
	}
	return events, nil
}

func (b *Backend) eventsFromQuery(ctx context.Context, query string) (backend.InvokedSet, error) {
	rows, err := b.runQuery(ctx, query, b.database)
	if err != nil {
		return nil, err
	}
	return eventsFromRows(rows), nil
}

// eventsFromRows parses Athena's string rendering of the (eventsource,
// eventname) row tuple — "{field0=s3.amazonaws.com, field1=GetBucketAcl}" —
// into normalized actions. Athena renders row-typed columns this way rather
// than as separate result columns, so there's no structured alternative to
// parsing the string.
func eventsFromRows(rows [][]string) backend.InvokedSet {
	events := make(backend.InvokedSet)
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		service, eventName, ok := parseEventTuple(row[0])
		if !ok {
			continue
		}
		events[action.Normalize(service, eventName)] = true
	}
	return events
}

// parseEventTuple parses "{field0=s3.amazonaws.com, field1=GetBucketAcl}"
// into ("s3.amazonaws.com", "GetBucketAcl").
func parseEventTuple(tuple string) (service, eventName string, ok bool) {
	tuple = strings.TrimPrefix(tuple, "{")
	tuple = strings.TrimSuffix(tuple, "}")

	fields := strings.SplitN(tuple, ", ", 2)
	if len(fields) != 2 {
		return "", "", false
	}

	_, source, ok1 := strings.Cut(fields[0], "=")
	_, name, ok2 := strings.Cut(fields[1], "=")
	if !ok1 || !ok2 {
		return "", "", false
	}
	return source, name, true
}
