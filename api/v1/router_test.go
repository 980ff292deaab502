package v1

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/config"
	"github.com/portal-orchestrator/controllers"
	"github.com/portal-orchestrator/database"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/services"
	"github.com/portal-orchestrator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/keymutex"
)

const testDeployToken = "ci-token"

type testAPI struct {
	router *gin.Engine
	store  *repositories.Store
	auth   *services.AuthService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	store := repositories.NewStore(db, "hydrosim")

	cfg := &config.Config{
		BuildNamespace:     "hydrosim",
		BuildPollInterval:  10 * time.Millisecond,
		BuildMaxDuration:   5 * time.Second,
		KanikoImage:        "gcr.io/kaniko-project/executor:test",
		GitImage:           "alpine/git:test",
		GiteaWebhookSecret: "hook-secret",
	}
	clientset := fake.NewSimpleClientset()
	locks := keymutex.NewHashed(0)

	authService := services.NewAuthService(store.Users, "test-secret")
	studentService := services.NewStudentService(store.Students)
	buildConfigService := services.NewBuildConfigService(store.BuildConfigs, store.Registries)
	buildService := services.NewBuildService(store, clientset, cfg, locks)
	t.Cleanup(buildService.Shutdown)
	deployService := services.NewDeployService(store, clientset, locks)

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), Controllers{
		Users:        controllers.NewUserController(authService),
		Students:     controllers.NewStudentController(studentService),
		BuildConfigs: controllers.NewBuildConfigController(studentService, buildConfigService, services.NewDeployKeyService(store.BuildConfigs, buildConfigService, nil)),
		Builds:       controllers.NewBuildController(studentService, buildService),
		Deployments:  controllers.NewDeploymentController(deployService, services.NewStatusService(store.Students, clientset)),
		Registries:   controllers.NewRegistryController(services.NewRegistryService(store.Registries)),
		Admin: controllers.NewAdminController(
			services.NewSettingsService(store.Settings, store.Registries),
			services.NewMonitoringService(clientset, nil),
		),
		Webhooks: controllers.NewWebhookController(services.NewWebhookService(store.BuildConfigs, buildService, cfg.GiteaWebhookSecret)),
	}, authService, testDeployToken)

	return &testAPI{router: router, store: store, auth: authService}
}

func (a *testAPI) user(t *testing.T, email string, role models.Role) (models.User, string) {
	t.Helper()
	user, err := a.auth.Register(dto.RegisterRequest{Email: email, Password: "password123", Role: role})
	require.NoError(t, err)
	token, _, err := a.auth.GenerateToken(user.ID, user.Email, string(user.Role))
	require.NoError(t, err)
	return *user, token
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var body dto.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthAndAuthentication(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/api/v1/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/students", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)

	rec = api.do(t, http.MethodGet, "/api/v1/students", nil, bearer("not-a-jwt"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	api.user(t, "teacher@example.com", models.RoleTeacher)
	rec = api.do(t, http.MethodPost, "/api/v1/auth/login", dto.LoginRequest{Email: "teacher@example.com", Password: "password123"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var auth dto.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	require.NotEmpty(t, auth.Token)

	rec = api.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(auth.Token))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "teacher@example.com")

	rec = api.do(t, http.MethodPost, "/api/v1/auth/login", dto.LoginRequest{Email: "teacher@example.com", Password: "wrong"}, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	api := newTestAPI(t)
	_, teacherToken := api.user(t, "teacher@example.com", models.RoleTeacher)
	_, adminToken := api.user(t, "admin@example.com", models.RoleAdmin)

	rec := api.do(t, http.MethodGet, "/api/v1/admin/settings", nil, bearer(teacherToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Code)

	rec = api.do(t, http.MethodGet, "/api/v1/admin/settings", nil, bearer(adminToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var settings models.SystemSetting
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &settings))
	assert.Equal(t, "hydrosim.cn", settings.StudentDomainBase)

	rec = api.do(t, http.MethodGet, "/api/v1/deploy/unknown-code?project_type=gd", nil, bearer(adminToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"not_deployed"`)

	rec = api.do(t, http.MethodGet, "/api/v1/admin/monitoring/overview", nil, bearer(adminToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), services.OverviewMetricsUnavailable)

	rec = api.do(t, http.MethodPost, "/api/v1/auth/register", dto.RegisterRequest{Email: "new@example.com", Password: "password123"}, bearer(teacherToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/auth/register", dto.RegisterRequest{Email: "new@example.com", Password: "password123"}, bearer(adminToken))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestRegistryRoutesReturnBareValues(t *testing.T) {
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v2/_catalog":
			_, _ = w.Write([]byte(`{"repositories":["team/app"]}`))
		case "/v2/team/app/tags/list":
			_, _ = w.Write([]byte(`{"name":"team/app","tags":["v1"]}`))
		case "/v2/team/app/manifests/v1":
			w.Header().Set("Docker-Content-Digest", "sha256:abc")
			w.WriteHeader(http.StatusOK)
		case "/v2/team/app/manifests/sha256:abc":
			w.WriteHeader(http.StatusAccepted)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(registry.Close)

	api := newTestAPI(t)
	_, adminToken := api.user(t, "admin@example.com", models.RoleAdmin)

	rec := api.do(t, http.MethodPost, "/api/v1/admin/registries", gin.H{"name": "local", "url": registry.URL}, bearer(adminToken))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created models.Registry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	base := "/api/v1/admin/registries/" + created.ID

	rec = api.do(t, http.MethodGet, base+"/catalog", nil, bearer(adminToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `["team/app"]`, rec.Body.String())

	rec = api.do(t, http.MethodGet, base+"/tags?repository=team/app", nil, bearer(adminToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `["v1"]`, rec.Body.String())

	rec = api.do(t, http.MethodDelete, base+"/tags?repository=team/app&tag=v1", nil, bearer(adminToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `true`, rec.Body.String())
}

func TestDeployTokenRoutes(t *testing.T) {
	api := newTestAPI(t)
	require.NoError(t, api.store.Students.Create(&models.Student{StudentCode: "s001", Name: "S", ProjectType: models.ProjectTypeGD}))
	token := map[string]string{"X-Deploy-Token": testDeployToken}

	rec := api.do(t, http.MethodPost, "/api/v1/deploy/s001", dto.DeployRequest{Image: "nginx:1.25", ProjectType: "gd"}, token)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var deployed dto.DeployResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &deployed))
	assert.Equal(t, "deploying", deployed.Status)
	assert.Equal(t, services.ActionCreated, deployed.Action)
	assert.Equal(t, "http://stu-s001.gd.hydrosim.cn", deployed.URL)

	rec = api.do(t, http.MethodGet, "/api/v1/deploy/s001?project_type=gd", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var status dto.LiveDeploymentStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "0/1", status.ReadyReplicas)

	rec = api.do(t, http.MethodPost, "/api/v1/deploy/s001", dto.DeployRequest{Image: "nginx:1.25", ProjectType: "gd"},
		map[string]string{"X-Deploy-Token": "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid deploy trigger token", decodeError(t, rec).Detail)

	rec = api.do(t, http.MethodDelete, "/api/v1/deploy/s001?project_type=gd", nil, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/v1/deploy/resources/list", nil, token)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/deploy/s001", dto.DeployRequest{Image: "nginx:1.25", ProjectType: "zz"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeError(t, rec).Code)

	rec = api.do(t, http.MethodPost, "/api/v1/deploy/nobody", dto.DeployRequest{Image: "nginx:1.25", ProjectType: "gd"}, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)

	for _, path := range []string{"/api/v1/deploy/s001/build", "/api/v1/deploy/s001/from-build"} {
		rec = api.do(t, http.MethodPost, path, dto.DeployFromBuildRequest{ProjectType: "gd"}, token)
		assert.Equal(t, http.StatusPreconditionFailed, rec.Code, path)
		assert.Equal(t, "no_successful_build", decodeError(t, rec).Code, path)
	}
}

func TestBuildRoutes(t *testing.T) {
	api := newTestAPI(t)
	teacher, teacherToken := api.user(t, "teacher@example.com", models.RoleTeacher)
	_, otherToken := api.user(t, "other@example.com", models.RoleTeacher)

	student := models.Student{StudentCode: "s002", Name: "S", ProjectType: models.ProjectTypeCD, TeacherID: &teacher.ID}
	require.NoError(t, api.store.Students.Create(&student))

	rec := api.do(t, http.MethodPost, "/api/v1/builds/trigger", nil, bearer(teacherToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "student_id is required", decodeError(t, rec).Detail)

	// portal clients send the trigger as query parameters with an empty body
	rec = api.do(t, http.MethodPost, "/api/v1/builds/trigger?student_id="+student.ID+"&branch=main", nil, bearer(teacherToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "configuration_error", body.Code)
	assert.Equal(t, "Build config is missing repo_url", body.Detail)

	rec = api.do(t, http.MethodPost, "/api/v1/builds/trigger", gin.H{"student_id": student.ID}, bearer(teacherToken))
	assert.Equal(t, "configuration_error", decodeError(t, rec).Code)

	rec = api.do(t, http.MethodPost, "/api/v1/builds/trigger", gin.H{"student_id": student.ID}, bearer(otherToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPut, "/api/v1/build-configs/"+student.ID, gin.H{
		"repo_url":   "https://git.example.com/team/app.git",
		"image_repo": "registry.example.com/team/app",
	}, bearer(teacherToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	active := models.Build{StudentID: student.ID, Status: models.BuildStatusRunning, JobName: "kaniko-existing"}
	require.NoError(t, api.store.Builds.Create(&active))

	rec = api.do(t, http.MethodPost, "/api/v1/builds/trigger", gin.H{"student_id": student.ID}, bearer(teacherToken))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "build_in_progress", decodeError(t, rec).Code)

	rec = api.do(t, http.MethodPost, "/api/v1/builds/trigger?student_id="+student.ID, nil, bearer(teacherToken))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/build-configs/"+student.ID+"/deploy-key", gin.H{"attach_to_gitea": false}, bearer(teacherToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var keyed map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &keyed))
	assert.NotContains(t, keyed, "config")
	assert.NotContains(t, keyed, "deploy_key_private")
	assert.Contains(t, keyed["deploy_key_public"], "ssh-rsa ")
	assert.Contains(t, keyed["deploy_key_fingerprint"], "SHA256:")
	assert.Equal(t, "registry.example.com/team/app", keyed["image_repo"])
	assert.Equal(t, false, keyed["attached"])

	rec = api.do(t, http.MethodGet, "/api/v1/builds", nil, bearer(teacherToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var builds []models.Build
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &builds))
	require.Len(t, builds, 1)
	assert.Equal(t, active.ID, builds[0].ID)

	rec = api.do(t, http.MethodGet, "/api/v1/builds", nil, bearer(otherToken))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &builds))
	assert.Empty(t, builds)

	rec = api.do(t, http.MethodGet, "/api/v1/builds/"+active.ID, nil, bearer(otherToken))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/v1/builds/"+active.ID+"/cancel", nil, bearer(teacherToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelled"`)

	rec = api.do(t, http.MethodPost, "/api/v1/builds/"+active.ID+"/cancel", nil, bearer(teacherToken))
	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, "precondition_failed", decodeError(t, rec).Code)
}

func TestGiteaWebhookRoute(t *testing.T) {
	api := newTestAPI(t)
	body := []byte(`{"ref":"refs/heads/main","repository":{"clone_url":"https://git.example.com/team/app.git"}}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gitea", bytes.NewReader(body))
	req.Header.Set("X-Gitea-Event", "push")
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Missing webhook signature", decodeError(t, rec).Detail)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gitea", bytes.NewReader(body))
	req.Header.Set("X-Gitea-Event", "push")
	req.Header.Set("X-Gitea-Signature", utils.SignWebhookBody("hook-secret", body))
	rec = httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var result dto.WebhookResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "No config found", result.Message)
}
