package service

import "github.com/wigshare/wigshare-api/internal/models"

// CanAct is the single authorization rule for workflow mutations: admins
// may always act, owners may always act on their own resources, and
// otherwise the actor's role must be explicitly allowed. It never errors;
// callers convert a false result into a forbidden response.
func CanAct(actorID string, role models.UserRole, ownerID string, allowedRoles ...models.UserRole) bool {
	switch role {
	case models.RoleAdmin:
		return true
	case models.RoleRequester, models.RoleInstitution:
		if actorID != "" && actorID == ownerID {
			return true
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				return true
			}
		}
		return false
	default:
		return false
	}
}
