package container

// Role is a named grouping of permissions, optionally inheriting from
// parent roles.
type Role struct {
	ID          string
	Name        string
	ParentRoles []string
	Permissions []string
	Active      bool
}

// RoleResolver answers role and permission questions about a user. The
// container deliberately ships no default binding or implementation
// for it: callers wire their own (in-memory, database-backed, or
// otherwise) through the binding layer, matching the optional
// authorization layer described alongside the container's service
// graph. Left as a named interface only, with no bundled resolver.
type RoleResolver interface {
	// EffectiveRoles returns every role held by userID, including roles
	// inherited through ParentRoles.
	EffectiveRoles(userID string) ([]Role, error)

	// HasPermission reports whether userID holds permission through any
	// effective role.
	HasPermission(userID, permission string) (bool, error)
}
