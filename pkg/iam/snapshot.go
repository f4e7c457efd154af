package iam

import "sync"

// ManagedPolicyRef references a managed policy attached to a user, role, or
// group by ARN; the document itself lives in AccountSnapshot.Policies.
type ManagedPolicyRef struct {
	PolicyName string `json:"PolicyName"`
	PolicyArn  string `json:"PolicyArn"`
}

// InlinePolicy is a policy document embedded directly on a user, role, or
// group rather than attached by ARN.
type InlinePolicy struct {
	PolicyName     string `json:"PolicyName"`
	PolicyDocument Policy `json:"PolicyDocument"`
}

// UserDetail is one entry of an IAM dump's UserDetailList.
type UserDetail struct {
	Arn                     string             `json:"Arn"`
	UserName                string             `json:"UserName"`
	UserId                  string             `json:"UserId"`
	Path                    string             `json:"Path"`
	CreateDate              string             `json:"CreateDate"`
	GroupList               []string           `json:"GroupList"`
	UserPolicyList          []InlinePolicy     `json:"UserPolicyList"`
	AttachedManagedPolicies []ManagedPolicyRef `json:"AttachedManagedPolicies"`
}

// RoleDetail is one entry of an IAM dump's RoleDetailList. The evaluator
// never interprets AssumeRolePolicyDocument (the trust policy) — it only
// carries it because the IAM dump does.
type RoleDetail struct {
	Arn                      string             `json:"Arn"`
	RoleName                 string             `json:"RoleName"`
	RoleId                   string             `json:"RoleId"`
	Path                     string             `json:"Path"`
	CreateDate               string             `json:"CreateDate"`
	AssumeRolePolicyDocument Policy             `json:"AssumeRolePolicyDocument"`
	RolePolicyList           []InlinePolicy     `json:"RolePolicyList"`
	AttachedManagedPolicies  []ManagedPolicyRef `json:"AttachedManagedPolicies"`
}

// GroupDetail is one entry of an IAM dump's GroupDetailList.
type GroupDetail struct {
	Arn                     string             `json:"Arn"`
	GroupName               string             `json:"GroupName"`
	GroupId                 string             `json:"GroupId"`
	Path                    string             `json:"Path"`
	GroupPolicyList         []InlinePolicy     `json:"GroupPolicyList"`
	AttachedManagedPolicies []ManagedPolicyRef `json:"AttachedManagedPolicies"`
}

// ManagedPolicyVersion is one versioned document of a managed policy.
type ManagedPolicyVersion struct {
	VersionId        string `json:"VersionId"`
	IsDefaultVersion bool   `json:"IsDefaultVersion"`
	Document         Policy `json:"Document"`
}

// ManagedPolicyDetail is one entry of an IAM dump's Policies list: a
// managed policy and every version AWS still retains for it.
type ManagedPolicyDetail struct {
	Arn               string                  `json:"Arn"`
	PolicyName        string                  `json:"PolicyName"`
	PolicyId          string                  `json:"PolicyId"`
	DefaultVersionId  string                  `json:"DefaultVersionId"`
	PolicyVersionList []ManagedPolicyVersion `json:"PolicyVersionList"`
}

// DefaultDocument returns the policy document flagged as the default
// version, or nil if none is marked default.
func (m *ManagedPolicyDetail) DefaultDocument() *Policy {
	for i := range m.PolicyVersionList {
		if m.PolicyVersionList[i].IsDefaultVersion {
			return &m.PolicyVersionList[i].Document
		}
	}
	return nil
}

// AccountSnapshot is the parsed IAM dump: four flat tables (Users, Roles,
// Groups, ManagedPolicies), the shape `aws iam get-account-authorization-details`
// produces. Users reference Groups by name and Groups/Users/Roles reference
// ManagedPolicies by ARN — resolved lazily through the lookup methods below
// rather than built into a cyclic object graph.
type AccountSnapshot struct {
	Users    []UserDetail          `json:"UserDetailList"`
	Roles    []RoleDetail          `json:"RoleDetailList"`
	Groups   []GroupDetail         `json:"GroupDetailList"`
	Policies []ManagedPolicyDetail `json:"Policies"`

	indexOnce   sync.Once
	byUserName  map[string]*UserDetail
	byRoleName  map[string]*RoleDetail
	byGroupName map[string]*GroupDetail
	byPolicyArn map[string]*ManagedPolicyDetail
}

func (s *AccountSnapshot) buildIndex() {
	s.indexOnce.Do(func() {
		s.byUserName = make(map[string]*UserDetail, len(s.Users))
		for i := range s.Users {
			s.byUserName[s.Users[i].UserName] = &s.Users[i]
		}
		s.byRoleName = make(map[string]*RoleDetail, len(s.Roles))
		for i := range s.Roles {
			s.byRoleName[s.Roles[i].RoleName] = &s.Roles[i]
		}
		s.byGroupName = make(map[string]*GroupDetail, len(s.Groups))
		for i := range s.Groups {
			s.byGroupName[s.Groups[i].GroupName] = &s.Groups[i]
		}
		s.byPolicyArn = make(map[string]*ManagedPolicyDetail, len(s.Policies))
		for i := range s.Policies {
			s.byPolicyArn[s.Policies[i].Arn] = &s.Policies[i]
		}
	})
}

// UserByName looks up a user by exact name.
func (s *AccountSnapshot) UserByName(name string) (*UserDetail, bool) {
	s.buildIndex()
	u, ok := s.byUserName[name]
	return u, ok
}

// RoleByName looks up a role by exact name.
func (s *AccountSnapshot) RoleByName(name string) (*RoleDetail, bool) {
	s.buildIndex()
	r, ok := s.byRoleName[name]
	return r, ok
}

// GroupByName looks up a group by exact name.
func (s *AccountSnapshot) GroupByName(name string) (*GroupDetail, bool) {
	s.buildIndex()
	g, ok := s.byGroupName[name]
	return g, ok
}

// PolicyByArn looks up a managed policy by ARN.
func (s *AccountSnapshot) PolicyByArn(arn string) (*ManagedPolicyDetail, bool) {
	s.buildIndex()
	p, ok := s.byPolicyArn[arn]
	return p, ok
}

// UserNames returns every username in the snapshot.
func (s *AccountSnapshot) UserNames() []string {
	names := make([]string, len(s.Users))
	for i, u := range s.Users {
		names[i] = u.UserName
	}
	return names
}

// RoleNames returns every role name in the snapshot.
func (s *AccountSnapshot) RoleNames() []string {
	names := make([]string, len(s.Roles))
	for i, r := range s.Roles {
		names[i] = r.RoleName
	}
	return names
}
