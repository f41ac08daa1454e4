package types

// Role is a user's role within a single room.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleReviewer Role = "reviewer"
	RoleViewer   Role = "viewer"
)

// Action is a category of operation a membership may be checked against.
type Action int

const (
	// ActionRead covers listing threads, comments and subscribing to the
	// room's event stream.
	ActionRead Action = iota
	// ActionWrite covers creating threads and comments.
	ActionWrite
	// ActionManage covers membership changes.
	ActionManage
)

var rolePermissions = map[Role]map[Action]bool{
	RoleOwner:    {ActionRead: true, ActionWrite: true, ActionManage: true},
	RoleReviewer: {ActionRead: true, ActionWrite: true},
	RoleViewer:   {ActionRead: true},
}

// Can reports whether the role permits the action. An unknown or empty
// role permits nothing, which is how an absent membership is modeled.
func (r Role) Can(a Action) bool {
	return rolePermissions[r][a]
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}
