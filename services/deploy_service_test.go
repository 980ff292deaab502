package services

import (
	"context"
	"testing"
	"time"

	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
	"k8s.io/utils/keymutex"
)

func newTestDeployService(t *testing.T) (*DeployService, *repositories.Store, *fake.Clientset) {
	t.Helper()
	store := newTestStore(t)
	clientset := fake.NewSimpleClientset()
	return NewDeployService(store, clientset, keymutex.NewHashed(0)), store, clientset
}

func TestTriggerDeployLifecycle(t *testing.T) {
	svc, store, clientset := newTestDeployService(t)
	ctx := context.Background()
	student := createStudent(t, store, "S2025_001", models.ProjectTypeGD, nil)

	resp, err := svc.TriggerDeploy(ctx, SystemActor, student.StudentCode, dto.DeployRequest{Image: "reg/app:v1", ProjectType: "gd"})
	require.NoError(t, err)
	assert.Equal(t, "deploying", resp.Status)
	assert.Equal(t, ActionCreated, resp.Action)
	assert.Equal(t, "Project student-s2025-001 successfully created", resp.Message)
	assert.Equal(t, "http://stu-s2025-001.gd.hydrosim.cn", resp.URL)

	deployment, err := clientset.AppsV1().Deployments("students-gd").Get(ctx, "student-s2025-001", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "reg/app:v1", deployment.Spec.Template.Spec.Containers[0].Image)
	_, err = clientset.CoreV1().Services("students-gd").Get(ctx, "student-s2025-001", metav1.GetOptions{})
	require.NoError(t, err)
	ingress, err := clientset.NetworkingV1().Ingresses("students-gd").Get(ctx, "student-s2025-001", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "stu-s2025-001.gd.hydrosim.cn", ingress.Spec.Rules[0].Host)
	_, err = clientset.CoreV1().Namespaces().Get(ctx, "students-gd", metav1.GetOptions{})
	require.NoError(t, err)

	stored, err := store.Students.FindByID(student.ID)
	require.NoError(t, err)
	assert.Equal(t, "stu-s2025-001.gd.hydrosim.cn", stored.Domain)

	resp, err = svc.TriggerDeploy(ctx, SystemActor, student.StudentCode, dto.DeployRequest{Image: "reg/app:v1", ProjectType: "gd"})
	require.NoError(t, err)
	assert.Equal(t, ActionUnchanged, resp.Action)

	resp, err = svc.TriggerDeploy(ctx, SystemActor, student.StudentCode, dto.DeployRequest{Image: "reg/app:v2", ProjectType: "gd"})
	require.NoError(t, err)
	assert.Equal(t, ActionUpdated, resp.Action)
	deployment, err = clientset.AppsV1().Deployments("students-gd").Get(ctx, "student-s2025-001", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "reg/app:v2", deployment.Spec.Template.Spec.Containers[0].Image)

	records, err := store.Deployments.List([]string{student.ID}, 0)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, record := range records {
		assert.Equal(t, models.DeploymentStatusRunning, record.Status)
	}
}

func TestTriggerDeployValidation(t *testing.T) {
	svc, store, _ := newTestDeployService(t)
	ctx := context.Background()
	owner := "teacher-1"
	student := createStudent(t, store, "s100", models.ProjectTypeCD, &owner)

	_, err := svc.TriggerDeploy(ctx, SystemActor, "s100", dto.DeployRequest{Image: "img", ProjectType: "xx"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "Invalid project_type")

	_, err = svc.TriggerDeploy(ctx, SystemActor, "s100", dto.DeployRequest{Image: "img", ProjectType: "gd"})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "Project type mismatch")

	_, err = svc.TriggerDeploy(ctx, SystemActor, "nobody", dto.DeployRequest{Image: "img", ProjectType: "cd"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.TriggerDeploy(ctx, teacherActor("teacher-2"), student.StudentCode, dto.DeployRequest{Image: "img", ProjectType: "cd"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.TriggerDeploy(ctx, teacherActor(owner), student.StudentCode, dto.DeployRequest{Image: "img", ProjectType: "cd"})
	assert.NoError(t, err)

	_, err = svc.TriggerDeploy(ctx, Actor{DeployToken: true}, student.StudentCode, dto.DeployRequest{Image: "img2", ProjectType: "cd"})
	assert.NoError(t, err)
}

func TestTriggerDeployRBACDenied(t *testing.T) {
	svc, store, clientset := newTestDeployService(t)
	student := createStudent(t, store, "s200", models.ProjectTypeGD, nil)
	clientset.PrependReactor("create", "deployments", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, apierrors.NewForbidden(schema.GroupResource{Group: "apps", Resource: "deployments"}, "student-s200", nil)
	})

	_, err := svc.TriggerDeploy(context.Background(), SystemActor, student.StudentCode, dto.DeployRequest{Image: "img", ProjectType: "gd"})
	require.ErrorIs(t, err, ErrInfrastructure)
	assert.Equal(t, "Deployment controller RBAC permission denied", err.Error())

	records, err := store.Deployments.List([]string{student.ID}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.DeploymentStatusFailed, records[0].Status)
	assert.Equal(t, "Kubernetes Operation Failed: Forbidden", records[0].Message)
}

func TestDeployFromBuild(t *testing.T) {
	svc, store, _ := newTestDeployService(t)
	ctx := context.Background()
	student := createStudent(t, store, "s300", models.ProjectTypeGD, nil)
	other := createStudent(t, store, "s301", models.ProjectTypeGD, nil)

	_, err := svc.DeployFromBuild(ctx, SystemActor, "s300", dto.DeployFromBuildRequest{ProjectType: "gd"})
	assert.ErrorIs(t, err, ErrNoSuccessfulBuild)

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	older := models.Build{ID: "b-old", StudentID: student.ID, Status: models.BuildStatusSuccess, Image: "reg/s300:old", CreatedAt: base}
	newer := models.Build{ID: "b-new", StudentID: student.ID, Status: models.BuildStatusSuccess, Image: "reg/s300:new", CreatedAt: base.Add(time.Hour)}
	failed := models.Build{ID: "b-failed", StudentID: student.ID, Status: models.BuildStatusFailed, CreatedAt: base.Add(2 * time.Hour)}
	foreign := models.Build{ID: "b-foreign", StudentID: other.ID, Status: models.BuildStatusSuccess, CreatedAt: base}
	for _, build := range []*models.Build{&older, &newer, &failed, &foreign} {
		require.NoError(t, store.Builds.Create(build))
	}

	resp, err := svc.DeployFromBuild(ctx, SystemActor, "s300", dto.DeployFromBuildRequest{ProjectType: "gd"})
	require.NoError(t, err)
	assert.Equal(t, "b-new", resp.BuildID)
	assert.Equal(t, "reg/s300:new", resp.Image)
	assert.Equal(t, "deploying", resp.Status)

	resp, err = svc.DeployFromBuild(ctx, SystemActor, "s300", dto.DeployFromBuildRequest{BuildID: "b-old", ProjectType: "gd"})
	require.NoError(t, err)
	assert.Equal(t, "reg/s300:old", resp.Image)

	_, err = svc.DeployFromBuild(ctx, SystemActor, "s300", dto.DeployFromBuildRequest{BuildID: "b-failed", ProjectType: "gd"})
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Contains(t, err.Error(), "status=failed")

	_, err = svc.DeployFromBuild(ctx, SystemActor, "s300", dto.DeployFromBuildRequest{BuildID: "b-foreign", ProjectType: "gd"})
	assert.ErrorIs(t, err, ErrNotFound)

	exists, err := store.Deployments.ExistsForBuild("b-new")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDeployBuildSkipsDeployedBuilds(t *testing.T) {
	svc, store, _ := newTestDeployService(t)
	student := createStudent(t, store, "s400", models.ProjectTypeCD, nil)
	build := models.Build{StudentID: student.ID, Status: models.BuildStatusSuccess, Image: "reg/s400:abc"}
	require.NoError(t, store.Builds.Create(&build))

	require.NoError(t, svc.DeployBuild(context.Background(), build))
	require.NoError(t, svc.DeployBuild(context.Background(), build))

	records, err := store.Deployments.List([]string{student.ID}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].BuildID)
	assert.Equal(t, build.ID, *records[0].BuildID)
}

func TestDeleteDeployment(t *testing.T) {
	svc, store, clientset := newTestDeployService(t)
	ctx := context.Background()
	student := createStudent(t, store, "s500", models.ProjectTypeGD, nil)

	_, err := svc.DeleteDeployment(ctx, Actor{DeployToken: true}, "s500", "gd")
	assert.ErrorIs(t, err, ErrForbidden)

	result, err := svc.DeleteDeployment(ctx, SystemActor, "s500", "gd")
	require.NoError(t, err)
	assert.Equal(t, "not_found", result.Status)

	_, err = svc.TriggerDeploy(ctx, SystemActor, student.StudentCode, dto.DeployRequest{Image: "img", ProjectType: "gd"})
	require.NoError(t, err)

	result, err = svc.DeleteDeployment(ctx, SystemActor, "s500", "gd")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, []string{"Ingress", "Service", "Deployment"}, result.Deleted)
	assert.Equal(t, "Deleted: Ingress, Service, Deployment", result.Message)

	_, err = clientset.AppsV1().Deployments("students-gd").Get(ctx, "student-s500", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))

	live, err := NewStatusService(store.Students, clientset).GetStatus(ctx, SystemActor, "s500", "gd")
	require.NoError(t, err)
	assert.Equal(t, utils.LiveStatusNotDeployed, live.Status)
	assert.Equal(t, "0/0", live.ReadyReplicas)

	records, err := store.Deployments.List([]string{student.ID}, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1, "audit records survive deletion")
}

func TestListClusterResourcesScopesTeachers(t *testing.T) {
	svc, store, _ := newTestDeployService(t)
	ctx := context.Background()
	mine, theirs := "teacher-a", "teacher-b"
	createStudent(t, store, "a1", models.ProjectTypeGD, &mine)
	createStudent(t, store, "b1", models.ProjectTypeCD, &theirs)

	for _, req := range []struct{ code, projectType string }{{"a1", "gd"}, {"b1", "cd"}} {
		_, err := svc.TriggerDeploy(ctx, SystemActor, req.code, dto.DeployRequest{Image: "img:" + req.code, ProjectType: req.projectType})
		require.NoError(t, err)
	}

	all, err := svc.ListClusterResources(ctx, SystemActor)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b1", all[0].StudentCode)
	assert.Equal(t, "students-cd", all[0].Namespace)
	assert.Equal(t, "stu-b1.cd.hydrosim.cn", all[0].Host)

	scoped, err := svc.ListClusterResources(ctx, teacherActor(mine))
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "a1", scoped[0].StudentCode)
	assert.Equal(t, "img:a1", scoped[0].Image)

	_, err = svc.ListClusterResources(ctx, Actor{DeployToken: true})
	assert.ErrorIs(t, err, ErrForbidden)

	records, err := svc.ListDeployments(teacherActor(mine), "", 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
