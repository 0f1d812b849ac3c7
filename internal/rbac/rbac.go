package rbac

import "github.com/mediation-escrow/backend/internal/models"

// Permission constants
const (
	PermCreateMediation  = "create_mediation"
	PermReadMediation    = "read_mediation"
	PermActAsParty       = "act_as_party"
	PermActAsMediator    = "act_as_mediator"
	PermAssignMediator   = "assign_mediator"
	PermOverseeDispute   = "oversee_dispute"
	PermResolveDispute   = "resolve_dispute"
	PermCancelAnyRequest = "cancel_any_request"
	PermListAll          = "list_all"
	PermRunSweeps        = "run_sweeps"
)

// RolePermissions defines what each role can do. Whether the actor is the seller,
// buyer or assignee of a given record is checked by the mediation service.
var RolePermissions = map[models.Role][]string{
	models.RoleUser: {
		PermCreateMediation, PermReadMediation, PermActAsParty,
	},
	models.RoleMediator: {
		PermCreateMediation, PermReadMediation, PermActAsParty, PermActAsMediator,
	},
	models.RoleAdmin: {
		PermCreateMediation, PermReadMediation, PermAssignMediator, PermOverseeDispute,
		PermResolveDispute, PermCancelAnyRequest, PermListAll, PermRunSweeps,
	},
	models.RoleSystem: {
		PermReadMediation, PermListAll, PermRunSweeps,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role models.Role, permission string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
