package transform

import "github.com/telhawk-systems/trailhawk/internal/models"

// rule yields an attribution value when it applies to the event.
type rule func(*models.AuditEvent) (string, bool)

// Evaluated in order; the first rule that applies wins.
var accessKeyRules = []rule{
	assumedRoleKey,
	identityKey,
}

var userRules = []rule{
	identityUser,
}

func resolve(event *models.AuditEvent, rules []rule) string {
	for _, r := range rules {
		if v, ok := r(event); ok {
			return v
		}
	}
	return models.Unattributed
}

// assumedRoleKey attributes an AssumeRole call to the temporary key it issued.
func assumedRoleKey(e *models.AuditEvent) (string, bool) {
	if e.EventName != models.EventNameAssumeRole {
		return "", false
	}
	return e.TemporaryAccessKeyID()
}

func identityKey(e *models.AuditEvent) (string, bool) {
	return e.IdentityAccessKeyID()
}

func identityUser(e *models.AuditEvent) (string, bool) {
	return e.IdentityUserName()
}
