package core

// Role is an opaque capability label supplied by the identity provider.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleWorker Role = "worker"
	RoleClient Role = "client"
)

// Actor identifies who is calling and for which tenant. It is passed explicitly
// on every mutating call; the ledger trusts it as already authenticated.
type Actor struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// transition classifies a requested state change against the current status.
type transition int

const (
	transitionApply     transition = iota // move forward
	transitionNoop                        // already in the target state
	transitionForbidden                   // illegal move
)

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
