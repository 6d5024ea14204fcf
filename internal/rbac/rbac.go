package rbac

type Role string
type Action string

const (
	RoleChild  Role = "child"
	RoleParent Role = "parent"
)

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionWrite  Action = "write"
)

// Can reports whether a role holds a capability. Children own their content
// outright; parents are strictly read-only. Ownership checks are layered on
// top of this matrix by the caller.
func Can(role Role, action Action) bool {
	switch role {
	case RoleChild:
		return action == ActionRead || action == ActionCreate || action == ActionWrite
	case RoleParent:
		return action == ActionRead
	default:
		return false
	}
}

func Valid(role string) bool {
	switch Role(role) {
	case RoleChild, RoleParent:
		return true
	default:
		return false
	}
}
