package iam

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/cloudtracker/cloudtracker/pkg/action"
	"github.com/cloudtracker/cloudtracker/pkg/catalog"
)

// GrantedSet is the set of Actions a principal has been granted by its
// collected policy statements.
type GrantedSet map[action.Action]bool

// privileges accumulates the statements applicable to one principal and
// expands them into a GrantedSet. This is the Go shape of the source's
// Privileges class.
type privileges struct {
	catalog    *catalog.Catalog
	statements []Statement
}

func newPrivileges(cat *catalog.Catalog) *privileges {
	return &privileges{catalog: cat}
}

// addStatement records a statement from a collected policy, unless it has
// no Action field (NotAction-only statements fall in this category, since
// NotAction evaluation is out of scope).
func (p *privileges) addStatement(stmt Statement) {
	if stmt.Action == nil {
		if stmt.NotAction != nil {
			slog.Warn("iam: statement uses NotAction, which is unsupported; skipping",
				slog.String("sid", stmt.Sid))
		}
		return
	}
	p.statements = append(p.statements, stmt)
}

// actionPatternRegexp compiles one IAM action pattern (e.g. "s3:Put*") into
// a case-insensitive, fully-anchored regexp. '*' expands to any run of
// characters, '?' to exactly one, everything else is matched literally.
func actionPatternRegexp(pattern string) *regexp.Regexp {
	pattern = strings.ToLower(pattern)
	quoted := regexp.QuoteMeta(pattern)
	quoted = strings.ReplaceAll(quoted, `\*`, ".*")
	quoted = strings.ReplaceAll(quoted, `\?`, ".")
	return regexp.MustCompile("(?i)^" + quoted + "$")
}

// actionsFromStatement expands a statement's Action patterns against every
// action in the catalog, returning the matches translated back to IAM
// naming. Matching is catalog-driven, not pattern-driven: only actions that
// actually exist in the catalog can ever appear in the result, even for a
// literal (non-globbed) pattern — this is deliberate (see §8 scenario 7 in
// the design notes) and not a bug to "fix".
func (p *privileges) actionsFromStatement(stmt Statement) map[action.Action]bool {
	matched := make(map[action.Action]bool)
	for _, pattern := range *stmt.Action {
		re := actionPatternRegexp(pattern)
		for _, candidate := range p.catalog.Actions() {
			if re.MatchString(string(candidate)) {
				matched[action.CloudTrailToIAM(candidate)] = true
			}
		}
	}
	return matched
}

// resourceIsUnrestricted reports whether resource explicitly includes the
// literal wildcard "*". An absent Resource field is NOT unrestricted for
// this purpose — only an explicit "*" counts, matching the source's
// `'*' in make_list(stmt.get('Resource', None))` check.
func resourceIsUnrestricted(resource *DynaString) bool {
	if resource == nil {
		return false
	}
	return resource.Has("*")
}

// determineAllowed composes the collected statements into a GrantedSet:
// union every Allow, then subtract every Deny that is unconditional and
// applies to an unrestricted ("*") resource. Narrower-resource or
// condition-scoped Denies are deliberately ignored at this granularity —
// the tool reports whether an action is possible at all, not whether every
// resource is reachable.
func (p *privileges) determineAllowed() GrantedSet {
	granted := make(GrantedSet)

	for _, stmt := range p.statements {
		if stmt.Effect != "Allow" {
			continue
		}
		for a := range p.actionsFromStatement(stmt) {
			granted[a] = true
		}
	}

	for _, stmt := range p.statements {
		if stmt.Effect != "Deny" {
			continue
		}
		if !resourceIsUnrestricted(stmt.Resource) || stmt.Condition != nil {
			continue
		}
		for a := range p.actionsFromStatement(stmt) {
			delete(granted, a)
		}
	}

	return granted
}

// addManagedPolicies collects statements from every policy ARN in refs,
// skipping (with a warning) any ARN absent from the snapshot or lacking a
// default document — IAM dumps taken mid-change can be inconsistent.
func (p *privileges) addManagedPolicies(snapshot *AccountSnapshot, refs []ManagedPolicyRef) {
	for _, ref := range refs {
		policy, ok := snapshot.PolicyByArn(ref.PolicyArn)
		if !ok {
			slog.Warn("iam: managed policy not found in snapshot, skipping",
				slog.String("arn", ref.PolicyArn))
			continue
		}
		doc := policy.DefaultDocument()
		if doc == nil {
			slog.Warn("iam: managed policy has no default version, skipping",
				slog.String("arn", ref.PolicyArn))
			continue
		}
		for _, stmt := range doc.Statements() {
			p.addStatement(stmt)
		}
	}
}

func (p *privileges) addInlinePolicies(policies []InlinePolicy) {
	for _, inline := range policies {
		for _, stmt := range inline.PolicyDocument.Statements() {
			p.addStatement(stmt)
		}
	}
}

// AllowedActionsForUser computes the GrantedSet for a user: its own
// attached managed and inline policies, plus — for every group it belongs
// to — that group's attached managed and inline policies.
func AllowedActionsForUser(snapshot *AccountSnapshot, user *UserDetail, cat *catalog.Catalog) GrantedSet {
	p := newPrivileges(cat)

	for _, groupName := range user.GroupList {
		group, ok := snapshot.GroupByName(groupName)
		if !ok {
			continue
		}
		p.addManagedPolicies(snapshot, group.AttachedManagedPolicies)
		p.addInlinePolicies(group.GroupPolicyList)
	}

	p.addManagedPolicies(snapshot, user.AttachedManagedPolicies)
	p.addInlinePolicies(user.UserPolicyList)

	return p.determineAllowed()
}

// AllowedActionsForRole computes the GrantedSet for a role: its attached
// managed policies and its inline policies. The role's trust document
// (AssumeRolePolicyDocument) is never consulted.
func AllowedActionsForRole(snapshot *AccountSnapshot, role *RoleDetail, cat *catalog.Catalog) GrantedSet {
	p := newPrivileges(cat)

	p.addManagedPolicies(snapshot, role.AttachedManagedPolicies)
	p.addInlinePolicies(role.RolePolicyList)

	return p.determineAllowed()
}
