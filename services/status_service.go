package services

import (
	"context"
	"errors"

	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
	appsv1 "k8s.io/api/apps/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// StatusService reads the live state of student workloads. Nothing is cached.
type StatusService struct {
	students  *repositories.StudentRepository
	clientset kubernetes.Interface
}

func NewStatusService(students *repositories.StudentRepository, clientset kubernetes.Interface) *StatusService {
	return &StatusService{students: students, clientset: clientset}
}

// GetStatus derives the live status of a student's Deployment. Cluster read
// failures are reported as an error status, not returned. An unknown student
// code is not_deployed so pollers can ask before the first deploy.
func (s *StatusService) GetStatus(ctx context.Context, actor Actor, code, projectType string) (dto.LiveDeploymentStatus, error) {
	namespace, ok := utils.NamespaceForProjectType(projectType)
	if !ok {
		return dto.LiveDeploymentStatus{}, newError(ErrValidation, "Invalid project_type")
	}

	if !actor.DeployToken {
		student, err := s.students.FindByCode(code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.DeriveDeploymentStatus(nil, nil), nil
		}
		if err != nil {
			return dto.LiveDeploymentStatus{}, err
		}
		if err := authorizeStudent(actor, student); err != nil {
			return dto.LiveDeploymentStatus{}, err
		}
	}

	return s.liveStatus(ctx, namespace, utils.StudentResourceName(code)), nil
}

func (s *StatusService) liveStatus(ctx context.Context, namespace, name string) dto.LiveDeploymentStatus {
	deployment, err := deploymentOrNil(ctx, s.clientset, namespace, name)
	if err != nil {
		zap.S().Warnf("⚠️ Failed to read deployment %s/%s: %v", namespace, name, err)
		return utils.APIErrorStatus(err)
	}
	if deployment == nil {
		return utils.DeriveDeploymentStatus(nil, nil)
	}

	pods, err := s.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app=" + name,
	})
	if err != nil {
		zap.S().Warnf("⚠️ Failed to list pods of %s/%s: %v", namespace, name, err)
		return utils.APIErrorStatus(err)
	}
	return utils.DeriveDeploymentStatus(deployment, pods.Items)
}

// deploymentOrNil is a Get that maps NotFound to nil
func deploymentOrNil(ctx context.Context, clientset kubernetes.Interface, namespace, name string) (*appsv1.Deployment, error) {
	deployment, err := clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, nil
	}
	return deployment, err
}
