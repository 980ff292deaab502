package services

import (
	"github.com/portal-orchestrator/models"
)

// Actor is the caller of an operation
type Actor struct {
	UserID string
	Role   models.Role
	// DeployToken is set for CI callers authenticated with X-Deploy-Token
	DeployToken bool
}

// SystemActor is used for internal triggers such as webhooks and auto-deploy
var SystemActor = Actor{Role: models.RoleAdmin}

func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleAdmin
}

// CanAccess reports whether the actor may operate on the student's project.
// Teachers see their own students and students without an owner.
func (a Actor) CanAccess(student models.Student) bool {
	if a.IsAdmin() || a.DeployToken {
		return true
	}
	if a.Role != models.RoleTeacher {
		return false
	}
	return student.TeacherID == nil || *student.TeacherID == a.UserID
}

// ScopeTeacherID returns the owner filter for listings, "" meaning no filter
func (a Actor) ScopeTeacherID() string {
	if a.IsAdmin() || a.DeployToken {
		return ""
	}
	return a.UserID
}

func authorizeStudent(actor Actor, student models.Student) error {
	if !actor.CanAccess(student) {
		return newError(ErrForbidden, "You do not have access to student %s", student.StudentCode)
	}
	return nil
}
