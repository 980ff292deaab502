package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/portal-orchestrator/database"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/utils/keymutex"
)

type recordingDeployer struct {
	mu     sync.Mutex
	builds []string
}

func (d *recordingDeployer) DeployBuild(_ context.Context, build models.Build) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.builds = append(d.builds, build.ID)
	return nil
}

func (d *recordingDeployer) deployed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.builds...)
}

func newTestBuildService(t *testing.T) (*BuildService, *repositories.Store, *fake.Clientset) {
	t.Helper()
	store := newTestStore(t)
	clientset := fake.NewSimpleClientset()
	svc := NewBuildService(store, clientset, newTestConfig(), keymutex.NewHashed(0))
	t.Cleanup(svc.Shutdown)
	return svc, store, clientset
}

func saveBuildConfig(t *testing.T, store *repositories.Store, cfg models.BuildConfig) models.BuildConfig {
	t.Helper()
	require.NoError(t, store.BuildConfigs.Save(&cfg))
	return cfg
}

// waitForJob returns the build Job once the runner has submitted it
func waitForJob(t *testing.T, clientset *fake.Clientset, namespace string) batchv1.Job {
	t.Helper()
	var job batchv1.Job
	require.Eventually(t, func() bool {
		jobs, err := clientset.BatchV1().Jobs(namespace).List(context.Background(), metav1.ListOptions{})
		if err != nil || len(jobs.Items) == 0 {
			return false
		}
		job = jobs.Items[0]
		return true
	}, 2*time.Second, 10*time.Millisecond)
	return job
}

func waitForBuildStatus(t *testing.T, store *repositories.Store, id string, status models.BuildStatus) models.Build {
	t.Helper()
	var build models.Build
	require.Eventually(t, func() bool {
		var err error
		build, err = store.Builds.FindByID(id)
		return err == nil && build.Status == status
	}, 2*time.Second, 10*time.Millisecond)
	return build
}

func completeJob(t *testing.T, clientset *fake.Clientset, job batchv1.Job, conditionType batchv1.JobConditionType, reason, message string) {
	t.Helper()
	job.Status.Conditions = append(job.Status.Conditions, batchv1.JobCondition{
		Type:    conditionType,
		Status:  corev1.ConditionTrue,
		Reason:  reason,
		Message: message,
	})
	if conditionType == batchv1.JobComplete {
		job.Status.Succeeded = 1
	} else {
		job.Status.Failed = 1
	}
	_, err := clientset.BatchV1().Jobs(job.Namespace).UpdateStatus(context.Background(), &job, metav1.UpdateOptions{})
	require.NoError(t, err)
}

func TestTriggerBuildConfigurationErrors(t *testing.T) {
	svc, store, _ := newTestBuildService(t)
	student := createStudent(t, store, "s001", models.ProjectTypeGD, nil)

	_, err := svc.TriggerBuild(context.Background(), "missing", dto.TriggerBuildRequest{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "Build config is missing repo_url")

	cfg := saveBuildConfig(t, store, models.BuildConfig{StudentID: student.ID, RepoURL: "https://git.example.com/s001/app.git"})
	_, err = svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "Image repository is not configured")

	cfg.RepoURL = "git@git.example.com:s001/app.git"
	cfg.ImageRepo = "registry.example.com/hydrosim/s001"
	saveBuildConfig(t, store, cfg)
	_, err = svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Contains(t, err.Error(), "Deploy key is required for SSH clones")

	builds, err := store.Builds.List(repositories.BuildFilter{StudentID: student.ID})
	require.NoError(t, err)
	assert.Empty(t, builds)
}

func TestTriggerBuildUsesDefaultRegistryTemplate(t *testing.T) {
	svc, store, clientset := newTestBuildService(t)
	student := createStudent(t, store, "S002", models.ProjectTypeCD, nil)

	registry, err := store.Registries.Create(models.Registry{
		Name:     "harbor",
		URL:      "https://harbor.example.com",
		Username: "robot",
		Password: "secret",
		IsActive: true,
	})
	require.NoError(t, err)
	settings, err := store.Settings.Get()
	require.NoError(t, err)
	settings.DefaultRegistryID = &registry.ID
	require.NoError(t, store.Settings.Save(&settings))

	saveBuildConfig(t, store, models.BuildConfig{
		StudentID:   student.ID,
		RepoURL:     "https://git.example.com/s002/app.git",
		Branch:      "dev",
		TagStrategy: models.TagStrategyBranchLatest,
	})

	build, err := svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusPending, build.Status)
	assert.Equal(t, "Initializing...", build.Message)
	assert.Equal(t, "dev", build.Branch)
	assert.Equal(t, "latest", build.CommitSHA)
	assert.Equal(t, "dev-latest", build.ImageTag)
	assert.Equal(t, "harbor.example.com/hydrosim/s002:dev-latest", build.Image)

	job := waitForJob(t, clientset, "hydrosim")
	assert.Equal(t, build.ID, job.Labels["build-id"])

	secret, err := clientset.CoreV1().Secrets("hydrosim").Get(context.Background(),
		"kaniko-registry-auth-"+utils.NormalizeK8sName(registry.ID), metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.SecretTypeDockerConfigJson, secret.Type)
}

func TestBuildRunsToSuccess(t *testing.T) {
	svc, store, clientset := newTestBuildService(t)
	deployer := &recordingDeployer{}
	svc.SetAutoDeployer(deployer)

	student := createStudent(t, store, "s003", models.ProjectTypeGD, nil)
	saveBuildConfig(t, store, models.BuildConfig{
		StudentID:  student.ID,
		RepoURL:    "https://git.example.com/s003/app.git",
		ImageRepo:  "registry.example.com/hydrosim/s003",
		AutoDeploy: true,
	})

	build, err := svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{CommitSHA: "abcdef1234567"})
	require.NoError(t, err)
	assert.Equal(t, "abcdef1", build.ImageTag)
	assert.Equal(t, "main", build.Branch)

	_, err = svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
	assert.ErrorIs(t, err, ErrBuildInProgress)

	job := waitForJob(t, clientset, "hydrosim")
	running := waitForBuildStatus(t, store, build.ID, models.BuildStatusRunning)
	assert.Equal(t, "Job submitted", running.Message)
	assert.Equal(t, job.Name, running.JobName)
	assert.NotNil(t, running.StartedAt)

	completeJob(t, clientset, job, batchv1.JobComplete, "", "")

	done := waitForBuildStatus(t, store, build.ID, models.BuildStatusSuccess)
	assert.Equal(t, "Build succeeded", done.Message)
	assert.NotNil(t, done.FinishedAt)
	assert.NotNil(t, done.Duration)

	require.Eventually(t, func() bool {
		return len(deployer.deployed()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{build.ID}, deployer.deployed())
}

func TestBuildFailureIsRecorded(t *testing.T) {
	svc, store, clientset := newTestBuildService(t)
	student := createStudent(t, store, "s004", models.ProjectTypeGD, nil)
	saveBuildConfig(t, store, models.BuildConfig{
		StudentID: student.ID,
		RepoURL:   "https://git.example.com/s004/app.git",
		ImageRepo: "registry.example.com/hydrosim/s004",
	})

	build, err := svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
	require.NoError(t, err)
	assert.Regexp(t, `^manual-[0-9a-f]{6}$`, build.ImageTag)

	job := waitForJob(t, clientset, "hydrosim")
	waitForBuildStatus(t, store, build.ID, models.BuildStatusRunning)
	completeJob(t, clientset, job, batchv1.JobFailed, "BackoffLimitExceeded", "Job has reached the specified backoff limit")

	failed := waitForBuildStatus(t, store, build.ID, models.BuildStatusFailed)
	assert.Equal(t, "job: BackoffLimitExceeded: Job has reached the specified backoff limit", failed.Message)
}

func TestCancelBuild(t *testing.T) {
	svc, store, clientset := newTestBuildService(t)
	student := createStudent(t, store, "s005", models.ProjectTypeGD, nil)
	saveBuildConfig(t, store, models.BuildConfig{
		StudentID: student.ID,
		RepoURL:   "https://git.example.com/s005/app.git",
		ImageRepo: "registry.example.com/hydrosim/s005",
	})

	build, err := svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
	require.NoError(t, err)
	job := waitForJob(t, clientset, "hydrosim")
	waitForBuildStatus(t, store, build.ID, models.BuildStatusRunning)

	cancelled, err := svc.CancelBuild(context.Background(), build.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusCancelled, cancelled.Status)

	_, err = clientset.BatchV1().Jobs("hydrosim").Get(context.Background(), job.Name, metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))

	_, err = svc.CancelBuild(context.Background(), build.ID)
	assert.ErrorIs(t, err, ErrPrecondition)

	svc.Wait()
	stored, err := store.Builds.FindByID(build.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusCancelled, stored.Status, "runner must not overwrite a cancelled build")
}

func TestConcurrentTriggersStartOneBuild(t *testing.T) {
	svc, store, _ := newTestBuildService(t)
	student := createStudent(t, store, "s006", models.ProjectTypeGD, nil)
	saveBuildConfig(t, store, models.BuildConfig{
		StudentID: student.ID,
		RepoURL:   "https://x/y.git",
		ImageRepo: "registry.example.com/hydrosim/s006",
	})

	const callers = 20
	var started, busy, other atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
			switch {
			case err == nil:
				started.Add(1)
			case errors.Is(err, ErrBuildInProgress):
				busy.Add(1)
			default:
				other.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), started.Load())
	assert.Equal(t, int32(callers-1), busy.Load())
	assert.Zero(t, other.Load())

	builds, err := store.Builds.List(repositories.BuildFilter{StudentID: student.ID})
	require.NoError(t, err)
	require.Len(t, builds, 1)
}

func TestBuildErrorsWhenRunningStateIsNotRecorded(t *testing.T) {
	db, err := database.Open(":memory:", logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	var failed atomic.Bool
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_mark_running", func(tx *gorm.DB) {
		updates, ok := tx.Statement.Dest.(map[string]interface{})
		if ok && updates["job_name"] != nil && failed.CompareAndSwap(false, true) {
			_ = tx.AddError(errors.New("database is locked"))
		}
	}))
	store := repositories.NewStore(db, "hydrosim")
	clientset := fake.NewSimpleClientset()
	svc := NewBuildService(store, clientset, newTestConfig(), keymutex.NewHashed(0))
	t.Cleanup(svc.Shutdown)

	student := createStudent(t, store, "s007", models.ProjectTypeGD, nil)
	saveBuildConfig(t, store, models.BuildConfig{
		StudentID: student.ID,
		RepoURL:   "https://git.example.com/s007/app.git",
		ImageRepo: "registry.example.com/hydrosim/s007",
	})

	build, err := svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
	require.NoError(t, err)

	errored := waitForBuildStatus(t, store, build.ID, models.BuildStatusError)
	assert.Equal(t, "Failed to record job submission: database is locked", errored.Message)
	assert.True(t, failed.Load())

	svc.Wait()
	jobs, err := clientset.BatchV1().Jobs("hydrosim").List(context.Background(), metav1.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, jobs.Items)

	_, err = svc.TriggerBuild(context.Background(), student.ID, dto.TriggerBuildRequest{})
	assert.NoError(t, err, "an errored build must not block the next trigger")
}

func TestResumeActiveBuilds(t *testing.T) {
	svc, store, clientset := newTestBuildService(t)
	started := time.Now()

	orphan := models.Build{StudentID: "s1", Status: models.BuildStatusPending}
	require.NoError(t, store.Builds.Create(&orphan))
	running := models.Build{StudentID: "s2", Status: models.BuildStatusRunning, JobName: "build-resume-abc123", StartedAt: &started}
	require.NoError(t, store.Builds.Create(&running))

	_, err := clientset.BatchV1().Jobs("hydrosim").Create(context.Background(), &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{Name: running.JobName, Namespace: "hydrosim"},
		Status:     batchv1.JobStatus{Succeeded: 1},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	require.NoError(t, svc.ResumeActiveBuilds())

	failed := waitForBuildStatus(t, store, orphan.ID, models.BuildStatusError)
	assert.Contains(t, failed.Message, "interrupted")
	waitForBuildStatus(t, store, running.ID, models.BuildStatusSuccess)
}

func TestSyncBuildMissingJob(t *testing.T) {
	svc, store, _ := newTestBuildService(t)
	started := time.Now()
	build := models.Build{StudentID: "s1", Status: models.BuildStatusRunning, JobName: "build-gone-000000", StartedAt: &started}
	require.NoError(t, store.Builds.Create(&build))

	synced, err := svc.SyncBuild(context.Background(), build.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BuildStatusError, synced.Status)
	assert.Equal(t, "Build job not found", synced.Message)
}

func TestGetLogs(t *testing.T) {
	svc, store, clientset := newTestBuildService(t)
	now := time.Now()

	archived := models.Build{StudentID: "s1", Status: models.BuildStatusFailed, Logs: "--- kaniko ---\nerror", FinishedAt: &now}
	require.NoError(t, store.Builds.Create(&archived))
	logs, err := svc.GetLogs(context.Background(), archived.ID)
	require.NoError(t, err)
	assert.True(t, logs.Available)
	assert.False(t, logs.Live)
	assert.Equal(t, archived.Logs, logs.Content)

	empty := models.Build{StudentID: "s1", Status: models.BuildStatusError, FinishedAt: &now}
	require.NoError(t, store.Builds.Create(&empty))
	logs, err = svc.GetLogs(context.Background(), empty.ID)
	require.NoError(t, err)
	assert.False(t, logs.Available)

	live := models.Build{StudentID: "s2", Status: models.BuildStatusRunning, JobName: "build-live-123abc", StartedAt: &now}
	require.NoError(t, store.Builds.Create(&live))
	_, err = clientset.CoreV1().Pods("hydrosim").Create(context.Background(), &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "build-live-123abc-xyz",
			Namespace: "hydrosim",
			Labels:    map[string]string{"job-name": live.JobName},
		},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	logs, err = svc.GetLogs(context.Background(), live.ID)
	require.NoError(t, err)
	assert.True(t, logs.Live)
	assert.True(t, logs.Available)
	assert.Contains(t, logs.Content, "--- kaniko ---")

	_, err = svc.GetLogs(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
