package auth

import "strings"

// Roles granted as token authorities.
const (
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// Identity is the verified identity injected into downstream requests.
type Identity struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

// CanAccess decides role-based access to a resource/action pair. It is a
// pure function so policy can be tested independent of transport.
//
// Resources are named "<kind>:<owner>" (e.g. "credential:alice") or by bare
// kind for collections (e.g. "boards").
func CanAccess(identity Identity, resource, action string) bool {
	if identity.Username == "" {
		return false
	}

	if identity.Role == RoleAdmin {
		return true
	}

	// Members may act on resources they own.
	if owner, ok := resourceOwner(resource); ok {
		return owner == identity.Username
	}

	// Members may use the board collections.
	if identity.Role == RoleMember && strings.HasPrefix(resource, "boards") {
		return action == "read" || action == "write"
	}

	return false
}

// resourceOwner extracts the owner from an owned resource name.
func resourceOwner(resource string) (string, bool) {
	kind, owner, found := strings.Cut(resource, ":")
	if !found || owner == "" {
		return "", false
	}
	switch kind {
	case "credential", "profile":
		return owner, true
	}
	return "", false
}
