package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "child read", role: RoleChild, action: ActionRead, allow: true},
		{name: "child create", role: RoleChild, action: ActionCreate, allow: true},
		{name: "child write", role: RoleChild, action: ActionWrite, allow: true},
		{name: "parent read", role: RoleParent, action: ActionRead, allow: true},
		{name: "parent create", role: RoleParent, action: ActionCreate, allow: false},
		{name: "parent write", role: RoleParent, action: ActionWrite, allow: false},
		{name: "unknown role", role: Role("admin"), action: ActionRead, allow: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestValid(t *testing.T) {
	if !Valid("child") || !Valid("parent") {
		t.Fatal("expected child and parent to be valid roles")
	}
	if Valid("") || Valid("admin") || Valid("Child") {
		t.Fatal("expected unknown roles to be invalid")
	}
}
