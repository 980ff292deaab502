package services

import (
	"testing"
	"time"

	"github.com/portal-orchestrator/config"
	"github.com/portal-orchestrator/database"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *repositories.Store {
	t.Helper()
	db, err := database.Open(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return repositories.NewStore(db, "hydrosim")
}

func newTestConfig() *config.Config {
	return &config.Config{
		BuildNamespace:    "hydrosim",
		BuildPollInterval: 10 * time.Millisecond,
		BuildMaxDuration:  5 * time.Second,
		KanikoImage:       "gcr.io/kaniko-project/executor:test",
		GitImage:          "alpine/git:test",
	}
}

func createStudent(t *testing.T, store *repositories.Store, code string, projectType models.ProjectType, teacherID *string) models.Student {
	t.Helper()
	student := models.Student{
		StudentCode: code,
		Name:        "Student " + code,
		ProjectType: projectType,
		TeacherID:   teacherID,
	}
	require.NoError(t, store.Students.Create(&student))
	return student
}

func teacherActor(id string) Actor {
	return Actor{UserID: id, Role: models.RoleTeacher}
}
