package rbac

import (
	"testing"

	"github.com/mediation-escrow/backend/internal/models"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role models.Role
		perm string
		want bool
	}{
		{models.RoleUser, PermActAsParty, true},
		{models.RoleUser, PermActAsMediator, false},
		{models.RoleUser, PermResolveDispute, false},
		{models.RoleMediator, PermActAsMediator, true},
		{models.RoleAdmin, PermResolveDispute, true},
		{models.RoleAdmin, PermActAsParty, false},
		{models.RoleSystem, PermRunSweeps, true},
		{models.RoleSystem, PermAssignMediator, false},
		{"guest", PermReadMediation, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+tt.perm, func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}
