package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/portal-orchestrator/dto"
	k8s "github.com/portal-orchestrator/lib/kubernetes"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
	appsv1 "k8s.io/api/apps/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
	"k8s.io/utils/keymutex"
)

const (
	ActionCreated   = "created"
	ActionUpdated   = "updated"
	ActionUnchanged = "unchanged"
)

// DeployService is the deploy controller. It applies a student's Deployment,
// Service and Ingress and keeps an audit record of every attempt.
type DeployService struct {
	store     *repositories.Store
	clientset kubernetes.Interface
	locks     keymutex.KeyMutex
	now       func() time.Time
}

func NewDeployService(store *repositories.Store, clientset kubernetes.Interface, locks keymutex.KeyMutex) *DeployService {
	return &DeployService{
		store:     store,
		clientset: clientset,
		locks:     locks,
		now:       time.Now,
	}
}

// resolveTarget checks the project type and the actor's access to the student
func (s *DeployService) resolveTarget(actor Actor, code, projectType string) (models.Student, string, error) {
	namespace, ok := utils.NamespaceForProjectType(projectType)
	if !ok {
		return models.Student{}, "", newError(ErrValidation, "Invalid project_type")
	}
	student, err := s.store.Students.FindByCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return student, "", newError(ErrNotFound, "Student %s not found", code)
	}
	if err != nil {
		return student, "", err
	}
	if err := authorizeStudent(actor, student); err != nil {
		return student, "", err
	}
	if !strings.EqualFold(string(student.ProjectType), strings.TrimSpace(projectType)) {
		return student, "", newError(ErrValidation, "Project type mismatch")
	}
	return student, namespace, nil
}

func (s *DeployService) lock(code string) func() {
	key := "deploy/" + code
	s.locks.LockKey(key)
	return func() { _ = s.locks.UnlockKey(key) }
}

// TriggerDeploy applies an explicit image for a student
func (s *DeployService) TriggerDeploy(ctx context.Context, actor Actor, code string, req dto.DeployRequest) (dto.DeployResponse, error) {
	image := strings.TrimSpace(req.Image)
	if image == "" {
		return dto.DeployResponse{}, newError(ErrValidation, "image is required")
	}
	student, namespace, err := s.resolveTarget(actor, code, req.ProjectType)
	if err != nil {
		return dto.DeployResponse{}, err
	}

	defer s.lock(student.StudentCode)()
	return s.deploy(ctx, student, namespace, image, nil)
}

// DeployFromBuild deploys the image of a successful build. Without a build id
// the student's latest successful build is used.
func (s *DeployService) DeployFromBuild(ctx context.Context, actor Actor, code string, req dto.DeployFromBuildRequest) (dto.DeployFromBuildResponse, error) {
	student, namespace, err := s.resolveTarget(actor, code, req.ProjectType)
	if err != nil {
		return dto.DeployFromBuildResponse{}, err
	}

	build, err := s.selectBuild(student, strings.TrimSpace(req.BuildID))
	if err != nil {
		return dto.DeployFromBuildResponse{}, err
	}

	defer s.lock(student.StudentCode)()
	resp, err := s.deploy(ctx, student, namespace, build.Image, &build.ID)
	if err != nil {
		return dto.DeployFromBuildResponse{}, err
	}
	return dto.DeployFromBuildResponse{
		Status:  resp.Status,
		Message: resp.Message,
		BuildID: build.ID,
		Image:   build.Image,
		URL:     resp.URL,
	}, nil
}

func (s *DeployService) selectBuild(student models.Student, buildID string) (models.Build, error) {
	if buildID == "" {
		build, err := s.store.Builds.FindLatestSuccessful(student.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return build, newError(ErrNoSuccessfulBuild, "No successful build found for student %s", student.StudentCode)
		}
		return build, err
	}

	build, err := s.store.Builds.FindByID(buildID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && build.StudentID != student.ID) {
		return build, newError(ErrNotFound, "Build %s not found for student %s", buildID, student.StudentCode)
	}
	if err != nil {
		return build, err
	}
	if build.Status != models.BuildStatusSuccess {
		return build, newError(ErrPrecondition, "Build %s is not successful (status=%s)", build.ID, build.Status)
	}
	return build, nil
}

// DeployBuild is the auto-deploy path taken after a successful build
func (s *DeployService) DeployBuild(ctx context.Context, build models.Build) error {
	student, err := s.store.Students.FindByID(build.StudentID)
	if err != nil {
		return err
	}
	namespace, ok := utils.NamespaceForProjectType(string(student.ProjectType))
	if !ok {
		return newError(ErrValidation, "Invalid project_type")
	}

	defer s.lock(student.StudentCode)()

	// a manual deploy may have taken this build while we waited for the lock
	exists, err := s.store.Deployments.ExistsForBuild(build.ID)
	if err != nil || exists {
		return err
	}

	zap.S().Infof("🤖 Auto deploying build %s for %s", build.ID, student.StudentCode)
	_, err = s.deploy(ctx, student, namespace, build.Image, &build.ID)
	return err
}

// deploy applies the workload and records the outcome. Callers hold the
// student's deploy lock.
func (s *DeployService) deploy(ctx context.Context, student models.Student, namespace, image string, buildID *string) (dto.DeployResponse, error) {
	settings, err := s.store.Settings.Get()
	if err != nil {
		return dto.DeployResponse{}, err
	}
	workload := utils.StudentWorkload{
		StudentCode: student.StudentCode,
		Image:       image,
		Namespace:   namespace,
		Domain: utils.BuildStudentDomain(settings.DomainPrefix(), settings.StudentDomainBase,
			student.StudentCode, string(student.ProjectType)),
	}

	requestedAt := s.now()
	record := models.Deployment{
		StudentID:      student.ID,
		BuildID:        buildID,
		ImageTag:       image,
		Status:         models.DeploymentStatusDeploying,
		Message:        "Deployment requested",
		LastDeployTime: &requestedAt,
	}
	if err := s.store.Deployments.Create(&record); err != nil {
		return dto.DeployResponse{}, err
	}
	zap.S().Infof("🚢 Deploying %s to %s (image=%s)", student.StudentCode, namespace, image)

	action, err := s.applyWorkload(ctx, workload)
	finishedAt := s.now()
	record.LastDeployTime = &finishedAt
	if err != nil {
		record.Status = models.DeploymentStatusFailed
		record.Message = deployFailureMessage(err)
		if uerr := s.store.Deployments.UpdateOutcome(&record); uerr != nil {
			zap.S().Errorf("❌ Failed to record deployment outcome for %s: %v", student.StudentCode, uerr)
		}
		deploymentsTotal.WithLabelValues("apply", "failed").Inc()
		zap.S().Errorf("❌ Deployment of %s failed: %v", student.StudentCode, err)

		if apierrors.IsForbidden(err) {
			return dto.DeployResponse{}, wrapError(ErrInfrastructure, err, "Deployment controller RBAC permission denied")
		}
		return dto.DeployResponse{}, wrapError(ErrInfrastructure, err, "%s", record.Message)
	}

	message := fmt.Sprintf("Project %s successfully %s", workload.Name(), action)
	record.Status = models.DeploymentStatusRunning
	record.Message = message
	if err := s.store.Deployments.UpdateOutcome(&record); err != nil {
		return dto.DeployResponse{}, err
	}
	if student.Domain != workload.Host() {
		if err := s.store.Students.UpdateDomain(student.ID, workload.Host()); err != nil {
			return dto.DeployResponse{}, err
		}
	}
	deploymentsTotal.WithLabelValues(action, "success").Inc()
	zap.S().Infof("✅ %s", message)

	return dto.DeployResponse{
		Status:  "deploying",
		Action:  action,
		Message: message,
		URL:     "http://" + workload.Host(),
	}, nil
}

func deployFailureMessage(err error) string {
	var status apierrors.APIStatus
	if errors.As(err, &status) {
		reason := string(status.Status().Reason)
		if reason == "" {
			reason = status.Status().Message
		}
		return "Kubernetes Operation Failed: " + reason
	}
	return err.Error()
}

// applyWorkload converges the Deployment, Service and Ingress of a student
// and reports what happened to the Deployment
func (s *DeployService) applyWorkload(ctx context.Context, w utils.StudentWorkload) (string, error) {
	if err := k8s.EnsureNamespace(ctx, s.clientset, w.Namespace, map[string]string{utils.ManagedByLabel: utils.ManagedByValue}); err != nil {
		return "", err
	}

	action, err := s.applyDeployment(ctx, w)
	if err != nil {
		return "", err
	}
	if err := s.ensureService(ctx, w); err != nil {
		return "", err
	}
	if err := s.applyIngress(ctx, w); err != nil {
		return "", err
	}
	return action, nil
}

func (s *DeployService) applyDeployment(ctx context.Context, w utils.StudentWorkload) (string, error) {
	deployments := s.clientset.AppsV1().Deployments(w.Namespace)
	desired := utils.BuildStudentDeployment(w)

	existing, err := deployments.Get(ctx, w.Name(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := deployments.Create(ctx, desired, metav1.CreateOptions{}); err != nil {
			return "", err
		}
		return ActionCreated, nil
	}
	if err != nil {
		return "", err
	}
	if utils.ContainerImage(existing, utils.AppContainerName) == w.Image {
		return ActionUnchanged, nil
	}

	err = retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current, err := deployments.Get(ctx, w.Name(), metav1.GetOptions{})
		if err != nil {
			return err
		}
		if !utils.SetContainerImage(current, utils.AppContainerName, w.Image) {
			current.Spec.Template = desired.Spec.Template
		}
		_, err = deployments.Update(ctx, current, metav1.UpdateOptions{})
		return err
	})
	if err != nil {
		return "", err
	}
	return ActionUpdated, nil
}

func (s *DeployService) ensureService(ctx context.Context, w utils.StudentWorkload) error {
	services := s.clientset.CoreV1().Services(w.Namespace)
	_, err := services.Get(ctx, w.Name(), metav1.GetOptions{})
	if !apierrors.IsNotFound(err) {
		return err
	}
	_, err = services.Create(ctx, utils.BuildStudentService(w), metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

func (s *DeployService) applyIngress(ctx context.Context, w utils.StudentWorkload) error {
	ingresses := s.clientset.NetworkingV1().Ingresses(w.Namespace)
	desired := utils.BuildStudentIngress(w)

	existing, err := ingresses.Get(ctx, w.Name(), metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = ingresses.Create(ctx, desired, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}
	if apiequality.Semantic.DeepEqual(existing.Spec.Rules, desired.Spec.Rules) {
		return nil
	}

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		current, err := ingresses.Get(ctx, w.Name(), metav1.GetOptions{})
		if err != nil {
			return err
		}
		current.Spec.Rules = desired.Spec.Rules
		if current.Annotations == nil {
			current.Annotations = map[string]string{}
		}
		for k, v := range desired.Annotations {
			current.Annotations[k] = v
		}
		_, err = ingresses.Update(ctx, current, metav1.UpdateOptions{})
		return err
	})
}

// DeleteDeployment removes the Ingress, Service and Deployment of a student.
// Audit records are kept.
func (s *DeployService) DeleteDeployment(ctx context.Context, actor Actor, code, projectType string) (dto.DeleteDeploymentResult, error) {
	if actor.DeployToken {
		return dto.DeleteDeploymentResult{}, newError(ErrForbidden, "Deploy token cannot delete resources")
	}
	student, namespace, err := s.resolveTarget(actor, code, projectType)
	if err != nil {
		return dto.DeleteDeploymentResult{}, err
	}

	defer s.lock(student.StudentCode)()

	name := utils.StudentResourceName(student.StudentCode)
	result := dto.DeleteDeploymentResult{Deleted: []string{}, Errors: []string{}}
	steps := []struct {
		kind   string
		delete func() error
	}{
		{"Ingress", func() error {
			return s.clientset.NetworkingV1().Ingresses(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		}},
		{"Service", func() error {
			return s.clientset.CoreV1().Services(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		}},
		{"Deployment", func() error {
			return s.clientset.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		}},
	}
	for _, step := range steps {
		err := step.delete()
		switch {
		case err == nil:
			result.Deleted = append(result.Deleted, step.kind)
		case apierrors.IsNotFound(err):
		default:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", step.kind, err))
		}
	}

	if len(result.Deleted) == 0 && len(result.Errors) == 0 {
		result.Status = "not_found"
		result.Message = "No resources found to delete"
		return result, nil
	}
	result.Success = len(result.Errors) == 0
	result.Status = "success"
	result.Message = "Deleted: " + strings.Join(result.Deleted, ", ")
	outcome := "success"
	if !result.Success {
		outcome = "failed"
	}
	deploymentsTotal.WithLabelValues("delete", outcome).Inc()
	zap.S().Infof("🗑️ %s/%s: %s", namespace, name, result.Message)
	return result, nil
}

// ListDeployments returns audit records newest first, limited to the
// students the actor can see
func (s *DeployService) ListDeployments(actor Actor, studentID string, limit int) ([]models.Deployment, error) {
	if studentID != "" {
		student, err := s.store.Students.FindByID(studentID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(ErrNotFound, "Student %s not found", studentID)
		}
		if err != nil {
			return nil, err
		}
		if err := authorizeStudent(actor, student); err != nil {
			return nil, err
		}
		return s.store.Deployments.List([]string{studentID}, limit)
	}

	teacherID := actor.ScopeTeacherID()
	if teacherID == "" {
		return s.store.Deployments.List(nil, limit)
	}
	students, err := s.store.Students.List(teacherID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(students))
	for _, student := range students {
		ids = append(ids, student.ID)
	}
	return s.store.Deployments.List(ids, limit)
}

// ListClusterResources scans the student namespaces for managed Deployments.
// A namespace that cannot be listed is logged and skipped.
func (s *DeployService) ListClusterResources(ctx context.Context, actor Actor) ([]dto.ClusterResource, error) {
	if actor.DeployToken {
		return nil, newError(ErrForbidden, "Deploy token cannot access cluster resources")
	}

	students, err := s.store.Students.List(actor.ScopeTeacherID())
	if err != nil {
		return nil, err
	}
	codes := make(map[string]string, len(students))
	for _, student := range students {
		codes[utils.StudentDNSLabel(student.StudentCode)] = student.StudentCode
	}
	scoped := actor.ScopeTeacherID() != ""

	projectTypes := make([]string, 0, len(utils.StudentNamespaces))
	for projectType := range utils.StudentNamespaces {
		projectTypes = append(projectTypes, projectType)
	}
	sort.Strings(projectTypes)

	selector := metav1.ListOptions{LabelSelector: utils.ManagedByLabel + "=" + utils.ManagedByValue}
	resources := []dto.ClusterResource{}
	for _, projectType := range projectTypes {
		namespace := utils.StudentNamespaces[projectType]
		deployments, err := s.clientset.AppsV1().Deployments(namespace).List(ctx, selector)
		if err != nil {
			zap.S().Warnf("⚠️ Failed to list deployments in %s: %v", namespace, err)
			continue
		}
		hosts := s.ingressHosts(ctx, namespace, selector)

		for i := range deployments.Items {
			deployment := &deployments.Items[i]
			label := deployment.Labels["student"]
			code, known := codes[label]
			if scoped && !known {
				continue
			}
			if code == "" {
				code = label
			}
			resources = append(resources, clusterResource(deployment, code, projectType, hosts[deployment.Name]))
		}
	}
	return resources, nil
}

func (s *DeployService) ingressHosts(ctx context.Context, namespace string, opts metav1.ListOptions) map[string]string {
	hosts := map[string]string{}
	ingresses, err := s.clientset.NetworkingV1().Ingresses(namespace).List(ctx, opts)
	if err != nil {
		zap.S().Warnf("⚠️ Failed to list ingresses in %s: %v", namespace, err)
		return hosts
	}
	for _, ingress := range ingresses.Items {
		if len(ingress.Spec.Rules) > 0 {
			hosts[ingress.Name] = ingress.Spec.Rules[0].Host
		}
	}
	return hosts
}

func clusterResource(deployment *appsv1.Deployment, code, projectType, host string) dto.ClusterResource {
	replicas := int32(1)
	if deployment.Spec.Replicas != nil {
		replicas = *deployment.Spec.Replicas
	}
	resource := dto.ClusterResource{
		Name:          deployment.Name,
		Namespace:     deployment.Namespace,
		StudentCode:   code,
		ProjectType:   projectType,
		Image:         utils.ContainerImage(deployment, utils.AppContainerName),
		Replicas:      replicas,
		ReadyReplicas: deployment.Status.ReadyReplicas,
		Host:          host,
	}
	if !deployment.CreationTimestamp.IsZero() {
		created := deployment.CreationTimestamp.Time
		resource.CreatedAt = &created
	}
	return resource
}
