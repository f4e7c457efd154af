// Package coordinator drives one CloudTracker run: resolving accounts and
// principals, opening the configured CloudTrail backend, and dispatching to
// the diff presenter.
package coordinator

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cloudtracker/cloudtracker/internal/config"
	"github.com/cloudtracker/cloudtracker/internal/message"
	"github.com/cloudtracker/cloudtracker/pkg/backend"
	"github.com/cloudtracker/cloudtracker/pkg/backend/athena"
	"github.com/cloudtracker/cloudtracker/pkg/backend/elasticsearch"
	"github.com/cloudtracker/cloudtracker/pkg/catalog"
	"github.com/cloudtracker/cloudtracker/pkg/diff"
	"github.com/cloudtracker/cloudtracker/pkg/iam"
)

// ListKind selects which kind of principal --list enumerates.
type ListKind string

const (
	ListNone  ListKind = ""
	ListUsers ListKind = "users"
	ListRoles ListKind = "roles"
)

// Options captures one invocation's CLI-level inputs.
type Options struct {
	ConfigPath string
	Account    string

	List ListKind
	User string
	Role string

	DestAccount string
	DestRole    string

	Start time.Time
	End   time.Time

	Filters diff.Filters

	SkipSetup bool
}

// Run resolves the configured accounts and backend, then either lists
// principal activity or prints one principal's privilege diff to w.
func Run(ctx context.Context, w io.Writer, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	account, err := cfg.Resolve(opts.Account)
	if err != nil {
		return err
	}

	accountSnapshot, err := iam.LoadSnapshot(account.IAM)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, cfg, account.ID, backend.DateRange{Start: opts.Start, End: opts.End}, opts.SkipSetup)
	if err != nil {
		return err
	}
	if err := be.Setup(ctx); err != nil {
		return err
	}
	defer be.Teardown(ctx)

	cat, err := catalog.Load()
	if err != nil {
		return err
	}

	if opts.List != ListNone {
		return runList(ctx, w, opts, be, accountSnapshot)
	}
	return runInvestigate(ctx, w, opts, cfg, be, accountSnapshot, cat)
}

func openBackend(ctx context.Context, cfg *config.Config, accountID string, dateRange backend.DateRange, skipSetup bool) (backend.Backend, error) {
	if cfg.UsesElasticsearch() {
		message.Info("using elasticsearch backend")
		return elasticsearch.New(elasticsearch.Config{
			Addresses:      []string{fmt.Sprintf("http://%s:%d", cfg.Elasticsearch.Host, cfg.Elasticsearch.Port)},
			Index:          cfg.Elasticsearch.Index,
			KeyPrefix:      cfg.Elasticsearch.KeyPrefix,
			TimestampField: cfg.Elasticsearch.TimestampField,
		}, dateRange)
	}

	message.Info("using athena backend")
	return athena.New(ctx, athena.Config{
		Bucket:       cfg.Athena.S3Bucket,
		Path:         cfg.Athena.Path,
		OutputBucket: cfg.Athena.OutputS3Bucket,
		SkipSetup:    skipSetup,
	}, accountID, dateRange)
}

func runList(ctx context.Context, w io.Writer, opts Options, be backend.Backend, snapshot *iam.AccountSnapshot) error {
	var existing map[string]bool
	var performed map[string]bool
	var err error

	switch opts.List {
	case ListUsers:
		existing = toSet(snapshot.UserNames())
		performed, err = be.PerformedUsers(ctx)
	case ListRoles:
		existing = toSet(snapshot.RoleNames())
		performed, err = be.PerformedRoles(ctx)
	default:
		return fmt.Errorf("--list must be one of 'users' or 'roles'")
	}
	if err != nil {
		return err
	}

	diff.PrintActorDiff(w, performed, existing, opts.Filters.UseColor)
	return nil
}

func runInvestigate(ctx context.Context, w io.Writer, opts Options, cfg *config.Config, be backend.Backend, snapshot *iam.AccountSnapshot, cat *catalog.Catalog) error {
	destSnapshot := snapshot
	if opts.DestAccount != "" {
		destAccount, err := cfg.Resolve(opts.DestAccount)
		if err != nil {
			return err
		}
		destSnapshot, err = iam.LoadSnapshot(destAccount.IAM)
		if err != nil {
			return err
		}
	}

	var granted iam.GrantedSet
	var invoked backend.InvokedSet
	var err error

	switch {
	case opts.User != "":
		user, ok := snapshot.UserByName(opts.User)
		if !ok {
			return &iam.IamError{Op: fmt.Sprintf("user %s not found in account IAM dump", opts.User)}
		}
		message.Info("getting info on %s", opts.User)

		if opts.DestRole != "" {
			destRole, ok := destSnapshot.RoleByName(opts.DestRole)
			if !ok {
				return &iam.IamError{Op: fmt.Sprintf("role %s not found in destination account IAM dump", opts.DestRole)}
			}
			message.Info("getting info for assumerole into %s", opts.DestRole)
			granted = iam.AllowedActionsForRole(destSnapshot, destRole, cat)
			invoked, err = be.ActionsByUserInRole(ctx, user.Arn, destRole.Arn)
		} else {
			granted = iam.AllowedActionsForUser(snapshot, user, cat)
			invoked, err = be.ActionsByUser(ctx, user.Arn)
		}

	case opts.Role != "":
		role, ok := snapshot.RoleByName(opts.Role)
		if !ok {
			return &iam.IamError{Op: fmt.Sprintf("role %s not found in account IAM dump", opts.Role)}
		}
		message.Info("getting info for role %s", opts.Role)

		if opts.DestRole != "" {
			destRole, ok := destSnapshot.RoleByName(opts.DestRole)
			if !ok {
				return &iam.IamError{Op: fmt.Sprintf("role %s not found in destination account IAM dump", opts.DestRole)}
			}
			message.Info("getting info for assumerole into %s", opts.DestRole)
			granted = iam.AllowedActionsForRole(destSnapshot, destRole, cat)
			invoked, err = be.ActionsByRoleInRole(ctx, role.Arn, destRole.Arn)
		} else {
			granted = iam.AllowedActionsForRole(snapshot, role, cat)
			invoked, err = be.ActionsByRole(ctx, role.Arn)
		}

	default:
		return fmt.Errorf("must specify a user or a role")
	}
	if err != nil {
		return err
	}

	diff.PrintDiff(w, invoked, granted, cat, opts.Filters)
	return nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
