package iam

import (
	"encoding/json"
	"testing"

	"github.com/cloudtracker/cloudtracker/pkg/catalog"
)

func mustCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Load()
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}
	return c
}

func policyFromStatements(t *testing.T, stmts ...map[string]any) Policy {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"Version":   "2012-10-17",
		"Statement": stmts,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return p
}

func TestAllowedActionsForRole_GlobSoundness(t *testing.T) {
	cat := mustCatalog(t)
	policy := policyFromStatements(t, map[string]any{
		"Effect":   "Allow",
		"Action":   "s3:PutObject",
		"Resource": "*",
	})
	role := &RoleDetail{
		RoleName:       "test-role",
		RolePolicyList: []InlinePolicy{{PolicyName: "inline", PolicyDocument: policy}},
	}
	snapshot := &AccountSnapshot{}

	granted := AllowedActionsForRole(snapshot, role, cat)
	if len(granted) != 1 || !granted["s3:putobject"] {
		t.Fatalf("expected exactly {s3:putobject}, got %v", granted)
	}
}

func TestAllowedActionsForRole_DenyComposition(t *testing.T) {
	cat := mustCatalog(t)
	policy := policyFromStatements(t,
		map[string]any{"Effect": "Allow", "Action": "s3:*", "Resource": "*"},
		map[string]any{"Effect": "Deny", "Action": "s3:CreateBucket", "Resource": "*"},
	)
	role := &RoleDetail{RolePolicyList: []InlinePolicy{{PolicyDocument: policy}}}
	snapshot := &AccountSnapshot{}

	granted := AllowedActionsForRole(snapshot, role, cat)
	if granted["s3:createbucket"] {
		t.Error("s3:createbucket should be denied")
	}
	if !granted["s3:deletebucket"] {
		t.Error("s3:deletebucket should remain allowed")
	}
}

func TestAllowedActionsForRole_ResourceScopedDenyIgnored(t *testing.T) {
	cat := mustCatalog(t)
	policy := policyFromStatements(t,
		map[string]any{"Effect": "Allow", "Action": "s3:*", "Resource": "*"},
		map[string]any{"Effect": "Deny", "Action": "s3:CreateBucket", "Resource": "arn:aws:s3:::bucket/*"},
	)
	role := &RoleDetail{RolePolicyList: []InlinePolicy{{PolicyDocument: policy}}}
	snapshot := &AccountSnapshot{}

	granted := AllowedActionsForRole(snapshot, role, cat)
	if !granted["s3:createbucket"] {
		t.Error("s3:createbucket should remain allowed: deny had a scoped resource")
	}
}

func TestAllowedActionsForRole_ConditionScopedDenyIgnored(t *testing.T) {
	cat := mustCatalog(t)
	policy := policyFromStatements(t,
		map[string]any{"Effect": "Allow", "Action": "ec2:*", "Resource": "*"},
		map[string]any{
			"Effect":   "Deny",
			"Action":   []string{"ec2:StopInstances", "ec2:TerminateInstances"},
			"Resource": "*",
			"Condition": map[string]any{
				"BoolIfExists": map[string]any{"aws:MultiFactorAuthPresent": "false"},
			},
		},
	)
	role := &RoleDetail{RolePolicyList: []InlinePolicy{{PolicyDocument: policy}}}
	snapshot := &AccountSnapshot{}

	granted := AllowedActionsForRole(snapshot, role, cat)
	if !granted["ec2:stopinstances"] {
		t.Error("ec2:stopinstances should remain allowed: deny was condition-scoped")
	}
}

func TestAllowedActionsForRole_InlinePolicyCombination(t *testing.T) {
	cat := mustCatalog(t)
	kmsPolicy := policyFromStatements(t, map[string]any{
		"Effect":   "Allow",
		"Action":   []string{"kms:DescribeKey", "kms:Decrypt"},
		"Resource": "*",
	})
	s3Policy := policyFromStatements(t, map[string]any{
		"Effect":   "Allow",
		"Action":   []string{"s3:PutObject", "s3:PutObjectAcl", "s3:ListBucket"},
		"Resource": "*",
	})
	role := &RoleDetail{
		RolePolicyList: []InlinePolicy{
			{PolicyName: "kms", PolicyDocument: kmsPolicy},
			{PolicyName: "s3", PolicyDocument: s3Policy},
		},
	}
	snapshot := &AccountSnapshot{}

	granted := AllowedActionsForRole(snapshot, role, cat)
	want := GrantedSet{
		"kms:describekey": true,
		"kms:decrypt":     true,
		"s3:putobject":    true,
		"s3:putobjectacl": true,
	}
	if len(granted) != len(want) {
		t.Fatalf("got %v, want %v", granted, want)
	}
	for a := range want {
		if !granted[a] {
			t.Errorf("expected %s to be granted", a)
		}
	}
	if granted["s3:listbucket"] {
		t.Error("s3:listbucket should be absent: ListBucket is not in the shipped catalog under that name")
	}
}

func TestAllowedActionsForUser_ViaGroupMembership(t *testing.T) {
	cat := mustCatalog(t)
	groupPolicy := policyFromStatements(t, map[string]any{
		"Effect":   "Allow",
		"Action":   "ec2:DescribeInstances",
		"Resource": "*",
	})
	snapshot := &AccountSnapshot{
		Groups: []GroupDetail{
			{GroupName: "readers", GroupPolicyList: []InlinePolicy{{PolicyDocument: groupPolicy}}},
		},
	}
	user := &UserDetail{UserName: "alice", GroupList: []string{"readers"}}

	granted := AllowedActionsForUser(snapshot, user, cat)
	if !granted["ec2:describeinstances"] {
		t.Fatalf("expected ec2:describeinstances granted via group membership, got %v", granted)
	}
}

func TestAllowedActionsForUser_ManagedPolicySkippedWhenMissing(t *testing.T) {
	cat := mustCatalog(t)
	snapshot := &AccountSnapshot{}
	user := &UserDetail{
		UserName:                "bob",
		AttachedManagedPolicies: []ManagedPolicyRef{{PolicyArn: "arn:aws:iam::aws:policy/DoesNotExist"}},
	}

	granted := AllowedActionsForUser(snapshot, user, cat)
	if len(granted) != 0 {
		t.Fatalf("expected empty grant set when managed policy is missing, got %v", granted)
	}
}

func TestAllowedActionsForRole_WildcardGrantsOnlyCatalogActions(t *testing.T) {
	cat := mustCatalog(t)
	policy := policyFromStatements(t, map[string]any{
		"Effect":   "Allow",
		"Action":   "*",
		"Resource": "*",
	})
	role := &RoleDetail{RolePolicyList: []InlinePolicy{{PolicyDocument: policy}}}
	snapshot := &AccountSnapshot{}

	granted := AllowedActionsForRole(snapshot, role, cat)
	if len(granted) == 0 {
		t.Fatal("expected a non-empty grant set for Action: \"*\"")
	}
	if !granted["s3:getobject"] {
		t.Error("expected s3:getobject among a full wildcard grant")
	}
}

func TestActionPatternRegexp_QuestionMarkAndLiteral(t *testing.T) {
	re := actionPatternRegexp("s3:GetObject?")
	if !re.MatchString("s3:getobjecta") {
		t.Error("expected '?' to match a single trailing character")
	}
	if re.MatchString("s3:getobject") {
		t.Error("'?' requires exactly one character, not zero")
	}
	if re.MatchString("s3:getobjectab") {
		t.Error("'?' requires exactly one character, not two")
	}
}
