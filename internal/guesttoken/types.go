// ABOUTME: Data model for guest token issuance: users, resources, RLS rules, claims
// ABOUTME: Wire shapes shared by the remote exchange and the local signer

package guesttoken

// ResourceTypeDashboard is the only resource type this gateway grants.
const ResourceTypeDashboard = "dashboard"

// TokenTypeGuest is the value of the "type" claim in locally signed tokens.
const TokenTypeGuest = "guest"

// User is the identity embedded in a guest token.
type User struct {
	Username  string `json:"username" yaml:"username" toml:"username"`
	FirstName string `json:"first_name" yaml:"first_name" toml:"first_name"`
	LastName  string `json:"last_name" yaml:"last_name" toml:"last_name"`
}

// IsZero reports whether no field of the user is set.
func (u User) IsZero() bool {
	return u.Username == "" && u.FirstName == "" && u.LastName == ""
}

// Placeholder identities used when no guest user is configured.
var (
	DefaultRemoteUser = User{Username: "test_user", FirstName: "test", LastName: "user"}
	DefaultLocalUser  = User{Username: "embedded_username", FirstName: "test", LastName: "user"}
)

// Resource is an object the guest token grants access to.
type Resource struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// DashboardResource returns the single resource list for a dashboard.
func DashboardResource(dashboardID string) []Resource {
	return []Resource{{Type: ResourceTypeDashboard, ID: dashboardID}}
}

// RLSRule narrows the rows an embedded viewer may see. A rule without a
// dataset applies to every dataset on the dashboard.
type RLSRule struct {
	Dataset any    `json:"dataset,omitempty" yaml:"dataset,omitempty" toml:"dataset,omitempty"`
	Clause  string `json:"clause" yaml:"clause" toml:"clause"`
}

// NormalizeRules returns rules, or an empty non-nil slice so the wire
// encoding is always a JSON array.
func NormalizeRules(rules []RLSRule) []RLSRule {
	if rules == nil {
		return []RLSRule{}
	}
	return rules
}

// Target identifies what a guest token is issued for.
type Target struct {
	DashboardID   string
	Team          string
	WorkspaceSlug string
	User          User
}

// Validate checks that target names everything mode needs. The team is
// only part of the remote endpoint path, so local mode does not require it.
func (t Target) Validate(mode Mode) error {
	op := "validate_target"
	switch {
	case t.DashboardID == "":
		return ConfigurationError(op, "Dashboard ID must be configured.")
	case t.WorkspaceSlug == "":
		return ConfigurationError(op, "Workspace slug must be configured.")
	case mode != ModePEM && t.Team == "":
		return ConfigurationError(op, "Team must be configured.")
	}
	return nil
}

// Request is the body POSTed to the guest-token endpoint.
type Request struct {
	User      User       `json:"user"`
	Resources []Resource `json:"resources"`
	RLS       []RLSRule  `json:"rls"`
}

// NewRequest builds the remote request body for target.
func NewRequest(target Target, rules []RLSRule) Request {
	user := target.User
	if user.IsZero() {
		user = DefaultRemoteUser
	}
	return Request{
		User:      user,
		Resources: DashboardResource(target.DashboardID),
		RLS:       NormalizeRules(rules),
	}
}

// Claims is the claim set of a locally signed guest token. There is no
// iat or exp: the consuming system owns the validity window.
type Claims struct {
	User      User       `json:"user"`
	Resources []Resource `json:"resources"`
	RLSRules  []RLSRule  `json:"rls_rules"`
	Type      string     `json:"type"`
	Audience  string     `json:"aud"`
}

// NewClaims builds the local claim set for target.
func NewClaims(target Target, rules []RLSRule) Claims {
	user := target.User
	if user.IsZero() {
		user = DefaultLocalUser
	}
	return Claims{
		User:      user,
		Resources: DashboardResource(target.DashboardID),
		RLSRules:  NormalizeRules(rules),
		Type:      TokenTypeGuest,
		Audience:  target.WorkspaceSlug,
	}
}

// Credentials are the long-lived API identity exchanged for a session token.
type Credentials struct {
	APIKey    string
	APISecret string
}

// String redacts the secret so credentials are safe to pass to a logger.
func (c Credentials) String() string {
	if c.APIKey == "" {
		return "credentials(empty)"
	}
	return "credentials(" + c.APIKey + ", secret=REDACTED)"
}
