package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/portal-orchestrator/config"
	"github.com/portal-orchestrator/dto"
	k8s "github.com/portal-orchestrator/lib/kubernetes"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/utils/keymutex"
)

const autoDeployTimeout = 5 * time.Minute

// AutoDeployer deploys a successful build when its config asks for it
type AutoDeployer interface {
	DeployBuild(ctx context.Context, build models.Build) error
}

// BuildService is the build pipeline controller. Each triggered build gets a
// background runner that submits a kaniko Job and watches it until the build
// reaches a terminal state.
type BuildService struct {
	store     *repositories.Store
	clientset kubernetes.Interface
	cfg       *config.Config
	locks     keymutex.KeyMutex
	deployer  AutoDeployer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	now    func() time.Time
}

func NewBuildService(store *repositories.Store, clientset kubernetes.Interface, cfg *config.Config, locks keymutex.KeyMutex) *BuildService {
	ctx, cancel := context.WithCancel(context.Background())
	return &BuildService{
		store:     store,
		clientset: clientset,
		cfg:       cfg,
		locks:     locks,
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
}

// SetAutoDeployer wires the deploy controller used after successful builds
func (s *BuildService) SetAutoDeployer(deployer AutoDeployer) {
	s.deployer = deployer
}

// Shutdown stops all runners and waits for them. Running builds stay running
// in the database and are picked up again by ResumeActiveBuilds.
func (s *BuildService) Shutdown() {
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until every runner has returned
func (s *BuildService) Wait() {
	s.wg.Wait()
}

// buildPlan is everything a runner needs, resolved at trigger time
type buildPlan struct {
	build     models.Build
	student   models.Student
	config    models.BuildConfig
	registry  *models.Registry
	namespace string
}

// TriggerBuild validates the configuration, records a pending build and starts
// its runner. At most one build per student may be pending or running.
func (s *BuildService) TriggerBuild(ctx context.Context, studentID string, req dto.TriggerBuildRequest) (*models.Build, error) {
	plan, err := s.plan(studentID, req)
	if err != nil {
		return nil, err
	}

	key := "build/" + studentID
	s.locks.LockKey(key)
	defer func() { _ = s.locks.UnlockKey(key) }()

	active, err := s.store.Builds.FindActive(studentID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, newError(ErrBuildInProgress, "Build %s is already %s for student %s", active.ID, active.Status, plan.student.StudentCode)
	}

	if err := s.store.Builds.Create(&plan.build); err != nil {
		return nil, err
	}
	zap.S().Infof("🔨 Build %s queued for %s (%s@%s -> %s)",
		plan.build.ID, plan.student.StudentCode, plan.build.Branch, plan.build.CommitSHA, plan.build.Image)

	s.startRunner(plan)
	return &plan.build, nil
}

func (s *BuildService) plan(studentID string, req dto.TriggerBuildRequest) (buildPlan, error) {
	var plan buildPlan

	student, err := s.store.Students.FindByID(studentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return plan, newError(ErrNotFound, "Student %s not found", studentID)
	}
	if err != nil {
		return plan, err
	}

	cfg, err := s.store.BuildConfigs.FindByStudentID(studentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return plan, err
	}
	if err != nil || strings.TrimSpace(cfg.RepoURL) == "" {
		return plan, newError(ErrConfiguration, "Build config is missing repo_url")
	}
	applyConfigDefaults(&cfg)

	settings, err := s.store.Settings.Get()
	if err != nil {
		return plan, err
	}
	registry, err := s.resolveRegistry(cfg, settings)
	if err != nil {
		return plan, err
	}

	imageRepo := strings.TrimSpace(cfg.ImageRepo)
	if imageRepo == "" {
		host := ""
		if registry != nil {
			host = utils.CleanRegistryURL(registry.URL)
		}
		imageRepo = utils.RenderImageRepo(settings.DefaultImageRepoTemplate, host, student.StudentCode)
	}
	if imageRepo == "" {
		return plan, newError(ErrConfiguration, "Image repository is not configured")
	}

	if utils.IsSSHRepoURL(cfg.RepoURL) && !cfg.HasDeployKey() {
		return plan, newError(ErrConfiguration, "Deploy key is required for SSH clones")
	}

	branch := strings.TrimSpace(req.Branch)
	if branch == "" {
		branch = cfg.Branch
	}
	commit := strings.TrimSpace(req.CommitSHA)
	if commit == "" {
		commit = "latest"
	}
	tag := utils.ResolveImageTag(string(cfg.TagStrategy), commit, branch)

	plan = buildPlan{
		build: models.Build{
			StudentID: studentID,
			CommitSHA: commit,
			Branch:    branch,
			ImageTag:  tag,
			Image:     utils.ImageReference(imageRepo, tag),
			Status:    models.BuildStatusPending,
			Message:   "Initializing...",
		},
		student:   student,
		config:    cfg,
		registry:  registry,
		namespace: s.buildNamespace(settings),
	}
	return plan, nil
}

// resolveRegistry returns the registry of the config, falling back to the
// default of the settings. A dangling id resolves to no registry.
func (s *BuildService) resolveRegistry(cfg models.BuildConfig, settings models.SystemSetting) (*models.Registry, error) {
	id := cfg.RegistryID
	if id == nil || *id == "" {
		id = settings.DefaultRegistryID
	}
	if id == nil || *id == "" {
		return nil, nil
	}
	registry, err := s.store.Registries.FindByID(*id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		zap.S().Warnf("⚠️ Registry %s referenced by build config no longer exists", *id)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &registry, nil
}

func (s *BuildService) buildNamespace(settings models.SystemSetting) string {
	if settings.BuildNamespace != "" {
		return settings.BuildNamespace
	}
	return s.cfg.BuildNamespace
}

func (s *BuildService) currentBuildNamespace() string {
	settings, err := s.store.Settings.Get()
	if err != nil {
		zap.S().Warnf("⚠️ Failed to read settings, using configured build namespace: %v", err)
		return s.cfg.BuildNamespace
	}
	return s.buildNamespace(settings)
}

func (s *BuildService) startRunner(plan buildPlan) {
	s.wg.Add(1)
	activeBuilds.Inc()
	go func() {
		defer s.wg.Done()
		defer activeBuilds.Dec()
		s.runBuild(plan)
	}()
}

func (s *BuildService) runBuild(plan buildPlan) {
	build := plan.build

	jobName, err := s.submitJob(s.ctx, plan)
	if err != nil {
		zap.S().Errorf("❌ Failed to submit build %s: %v", build.ID, err)
		s.finalize(s.ctx, &build, plan.namespace, utils.JobOutcome{
			Phase:   utils.JobPhaseInfraError,
			Message: err.Error(),
		}, nil)
		return
	}

	startedAt := s.now()
	moved, err := s.store.Builds.MarkRunning(build.ID, jobName, "Job submitted", startedAt)
	if err != nil {
		// nothing will watch the job, so the pending row must not outlive it
		zap.S().Errorf("❌ Failed to mark build %s running: %v", build.ID, err)
		s.deleteJob(context.Background(), plan.namespace, jobName)
		s.finalize(s.ctx, &build, plan.namespace, utils.JobOutcome{
			Phase:   utils.JobPhaseInfraError,
			Message: "Failed to record job submission: " + err.Error(),
		}, nil)
		return
	}
	if !moved {
		// cancelled while the job was being submitted
		s.deleteJob(context.Background(), plan.namespace, jobName)
		return
	}
	build.Status = models.BuildStatusRunning
	build.JobName = jobName
	build.StartedAt = &startedAt
	zap.S().Infof("🚀 Build %s submitted as job %s/%s", build.ID, plan.namespace, jobName)

	s.watch(build, plan.namespace, s.cfg.BuildMaxDuration)
}

// submitJob provisions the namespace and secrets and creates the kaniko Job
func (s *BuildService) submitJob(ctx context.Context, plan buildPlan) (string, error) {
	ns := plan.namespace
	labels := map[string]string{utils.ManagedByLabel: utils.ManagedByValue}
	if err := k8s.EnsureNamespace(ctx, s.clientset, ns, labels); err != nil {
		return "", fmt.Errorf("failed to ensure build namespace: %w", err)
	}

	cloneURL := plan.config.RepoURL
	gitSecret := ""
	if utils.IsSSHRepoURL(cloneURL) {
		cloneURL = utils.RewriteGitHost(cloneURL, s.cfg.GiteaSSHInternalHost, s.cfg.GiteaSSHInternalPort, s.giteaExternalHost())
		gitSecret = "student-deploy-key-" + utils.NormalizeK8sName(plan.build.StudentID)
		secret := utils.BuildDeployKeySecret(gitSecret, ns, plan.config.DeployKeyPrivate)
		if err := k8s.ApplySecret(ctx, s.clientset, secret); err != nil {
			return "", err
		}
	}

	registrySecret := ""
	insecure := false
	if plan.registry != nil {
		insecure = utils.IsInsecureRegistry(plan.registry.URL)
		if plan.registry.HasCredentials() {
			registrySecret = "kaniko-registry-auth-" + utils.NormalizeK8sName(plan.registry.ID)
			secret, err := utils.BuildRegistryAuthSecret(registrySecret, ns,
				utils.CleanRegistryURL(plan.registry.URL), plan.registry.Username, plan.registry.Password)
			if err != nil {
				return "", err
			}
			if err := k8s.ApplySecret(ctx, s.clientset, secret); err != nil {
				return "", err
			}
		}
	}

	jobName := utils.BuildJobName(plan.build.ID)
	job := utils.BuildKanikoJob(utils.KanikoBuildSpec{
		JobName:            jobName,
		Namespace:          ns,
		BuildID:            plan.build.ID,
		StudentID:          plan.build.StudentID,
		RepoURL:            cloneURL,
		Branch:             plan.build.Branch,
		CommitSHA:          plan.build.CommitSHA,
		DockerfilePath:     plan.config.DockerfilePath,
		ContextPath:        plan.config.ContextPath,
		Destination:        plan.build.Image,
		GitSecretName:      gitSecret,
		RegistrySecretName: registrySecret,
		InsecureRegistry:   insecure,
		KanikoImage:        s.cfg.KanikoImage,
		GitImage:           s.cfg.GitImage,
		ActiveDeadline:     s.cfg.BuildMaxDuration,
	})

	if _, err := s.clientset.BatchV1().Jobs(ns).Create(ctx, job, metav1.CreateOptions{}); err != nil {
		return "", fmt.Errorf("failed to submit build job: %w", err)
	}
	return jobName, nil
}

// giteaExternalHost is the public ssh host that in-cluster clones rewrite
func (s *BuildService) giteaExternalHost() string {
	if s.cfg.GiteaSSHExternalHost != "" {
		return s.cfg.GiteaSSHExternalHost
	}
	if s.cfg.GiteaURL == "" {
		return ""
	}
	parsed, err := url.Parse(s.cfg.GiteaURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// watch polls the build's Job until it is terminal or budget runs out
func (s *BuildService) watch(build models.Build, namespace string, budget time.Duration) {
	err := wait.PollUntilContextTimeout(s.ctx, s.cfg.BuildPollInterval, budget, true, func(ctx context.Context) (bool, error) {
		done, err := s.reconcile(ctx, &build, namespace)
		if err != nil {
			zap.S().Warnf("⚠️ Build %s: failed to read job status: %v", build.ID, err)
			return false, nil
		}
		return done, nil
	})
	if err == nil || s.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	zap.S().Warnf("⏰ Build %s timed out after %s", build.ID, s.cfg.BuildMaxDuration)
	pods, _ := utils.ListJobPods(ctx, s.clientset, namespace, build.JobName)
	s.finalize(ctx, &build, namespace, utils.JobOutcome{
		Phase:   utils.JobPhaseInfraError,
		Message: fmt.Sprintf("Build timed out after %s", s.cfg.BuildMaxDuration),
	}, pods)
	s.deleteJob(ctx, namespace, build.JobName)
}

// reconcile reads the Job and its pods once and finalizes the build when the
// Job is terminal. It reports whether the build is done.
func (s *BuildService) reconcile(ctx context.Context, build *models.Build, namespace string) (bool, error) {
	job, err := s.clientset.BatchV1().Jobs(namespace).Get(ctx, build.JobName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		job, err = nil, nil
	}
	if err != nil {
		return false, err
	}

	var pods []corev1.Pod
	if job != nil {
		if pods, err = utils.ListJobPods(ctx, s.clientset, namespace, build.JobName); err != nil {
			return false, err
		}
	}

	outcome := utils.ClassifyBuildJob(job, pods)
	if !outcome.Terminal() {
		return false, nil
	}
	s.finalize(ctx, build, namespace, outcome, pods)
	return true, nil
}

func outcomeStatus(phase utils.JobPhase) models.BuildStatus {
	switch phase {
	case utils.JobPhaseSucceeded:
		return models.BuildStatusSuccess
	case utils.JobPhaseFailed:
		return models.BuildStatusFailed
	default:
		return models.BuildStatusError
	}
}

// finalize archives the logs and writes the terminal state. Only the writer
// that actually moved the build out of its active state records metrics and
// triggers auto-deploy.
func (s *BuildService) finalize(ctx context.Context, build *models.Build, namespace string, outcome utils.JobOutcome, pods []corev1.Pod) {
	if len(pods) > 0 {
		if logs, captured := utils.CollectBuildLogs(ctx, s.clientset, namespace, pods); captured {
			build.Logs = logs
		}
	}

	finishedAt := s.now()
	build.Status = outcomeStatus(outcome.Phase)
	build.Message = outcome.Message
	build.FinishedAt = &finishedAt
	start := build.CreatedAt
	if build.StartedAt != nil {
		start = *build.StartedAt
	}
	duration := int64(finishedAt.Sub(start).Seconds())
	if duration < 0 {
		duration = 0
	}
	build.Duration = &duration

	updated, err := s.store.Builds.Finish(build)
	if err != nil {
		zap.S().Errorf("❌ Failed to record outcome of build %s: %v", build.ID, err)
		return
	}
	if !updated {
		return
	}

	buildsTotal.WithLabelValues(string(build.Status)).Inc()
	buildDuration.WithLabelValues(string(build.Status)).Observe(float64(duration))
	if build.Status == models.BuildStatusSuccess {
		zap.S().Infof("✅ Build %s succeeded in %ds: %s", build.ID, duration, build.Image)
		s.autoDeploy(*build)
	} else {
		zap.S().Warnf("❌ Build %s finished with %s: %s", build.ID, build.Status, build.Message)
	}
}

// autoDeploy hands a successful build to the deploy controller when the
// student's config enables it and nothing has deployed this build yet
func (s *BuildService) autoDeploy(build models.Build) {
	if s.deployer == nil {
		return
	}
	cfg, err := s.store.BuildConfigs.FindByStudentID(build.StudentID)
	if err != nil || !cfg.AutoDeploy {
		return
	}
	if exists, err := s.store.Deployments.ExistsForBuild(build.ID); err != nil || exists {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), autoDeployTimeout)
		defer cancel()
		if err := s.deployer.DeployBuild(ctx, build); err != nil {
			zap.S().Warnf("⚠️ Auto deploy of build %s failed: %v", build.ID, err)
		}
	}()
}

func (s *BuildService) deleteJob(ctx context.Context, namespace, jobName string) {
	if jobName == "" {
		return
	}
	propagation := metav1.DeletePropagationBackground
	err := s.clientset.BatchV1().Jobs(namespace).Delete(ctx, jobName, metav1.DeleteOptions{PropagationPolicy: &propagation})
	if err != nil && !apierrors.IsNotFound(err) {
		zap.S().Warnf("⚠️ Failed to delete job %s/%s: %v", namespace, jobName, err)
	}
}

// ListBuilds returns builds newest first
func (s *BuildService) ListBuilds(filter repositories.BuildFilter) ([]models.Build, error) {
	return s.store.Builds.List(filter)
}

func (s *BuildService) GetBuild(id string) (models.Build, error) {
	build, err := s.store.Builds.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return build, newError(ErrNotFound, "Build %s not found", id)
	}
	return build, err
}

// CancelBuild stops an active build and deletes its Job
func (s *BuildService) CancelBuild(ctx context.Context, id string) (models.Build, error) {
	build, err := s.GetBuild(id)
	if err != nil {
		return build, err
	}
	if build.Status.IsTerminal() {
		return build, newError(ErrPrecondition, "Build %s already finished (status=%s)", build.ID, build.Status)
	}

	finishedAt := s.now()
	build.Status = models.BuildStatusCancelled
	build.Message = "Build cancelled"
	build.FinishedAt = &finishedAt
	if build.StartedAt != nil {
		duration := int64(finishedAt.Sub(*build.StartedAt).Seconds())
		build.Duration = &duration
	}

	updated, err := s.store.Builds.Finish(&build)
	if err != nil {
		return build, err
	}
	if !updated {
		current, _ := s.store.Builds.FindByID(id)
		return current, newError(ErrPrecondition, "Build %s already finished (status=%s)", current.ID, current.Status)
	}
	buildsTotal.WithLabelValues(string(models.BuildStatusCancelled)).Inc()

	s.deleteJob(ctx, s.currentBuildNamespace(), build.JobName)
	zap.S().Infof("🛑 Build %s cancelled", build.ID)
	return build, nil
}

// SyncBuild reconciles an active build against the cluster on demand
func (s *BuildService) SyncBuild(ctx context.Context, id string) (models.Build, error) {
	build, err := s.GetBuild(id)
	if err != nil {
		return build, err
	}
	if build.Status.IsTerminal() || build.JobName == "" {
		return build, nil
	}

	if _, err := s.reconcile(ctx, &build, s.currentBuildNamespace()); err != nil {
		return build, wrapError(ErrInfrastructure, err, "Failed to read build job: %v", err)
	}
	return s.GetBuild(id)
}

// ResumeActiveBuilds re-attaches runners to running builds after a restart.
// Pending builds never got a Job and are failed.
func (s *BuildService) ResumeActiveBuilds() error {
	builds, err := s.store.Builds.FindByStatuses(models.ActiveBuildStatuses...)
	if err != nil {
		return err
	}

	namespace := s.currentBuildNamespace()
	for i := range builds {
		build := builds[i]
		if build.Status == models.BuildStatusPending || build.JobName == "" {
			s.finalize(s.ctx, &build, namespace, utils.JobOutcome{
				Phase:   utils.JobPhaseInfraError,
				Message: "Build was interrupted before its job was submitted",
			}, nil)
			continue
		}

		budget := s.cfg.BuildMaxDuration
		if build.StartedAt != nil {
			budget -= s.now().Sub(*build.StartedAt)
		}
		if budget < s.cfg.BuildPollInterval {
			budget = s.cfg.BuildPollInterval
		}

		zap.S().Infof("🔄 Resuming watch of build %s (job %s)", build.ID, build.JobName)
		s.wg.Add(1)
		activeBuilds.Inc()
		go func() {
			defer s.wg.Done()
			defer activeBuilds.Dec()
			s.watch(build, namespace, budget)
		}()
	}
	return nil
}

// GetLogs returns archived logs of finished builds and live logs of running ones
func (s *BuildService) GetLogs(ctx context.Context, id string) (dto.BuildLogsResponse, error) {
	build, err := s.GetBuild(id)
	if err != nil {
		return dto.BuildLogsResponse{}, err
	}
	resp := dto.BuildLogsResponse{BuildID: build.ID}

	if build.Status.IsTerminal() {
		resp.Content = build.Logs
		resp.Available = build.Logs != ""
		return resp, nil
	}
	if build.JobName == "" {
		return resp, nil
	}

	pods, err := utils.ListJobPods(ctx, s.clientset, s.currentBuildNamespace(), build.JobName)
	if err != nil {
		return resp, wrapError(ErrInfrastructure, err, "Failed to read build logs: %v", err)
	}
	resp.Content, resp.Available = utils.CollectBuildLogs(ctx, s.clientset, s.currentBuildNamespace(), pods)
	resp.Live = true
	return resp, nil
}
