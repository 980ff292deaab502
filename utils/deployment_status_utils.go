package utils

import (
	"fmt"

	"github.com/portal-orchestrator/dto"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
)

const (
	LiveStatusNotDeployed = "not_deployed"
	LiveStatusDeploying   = "deploying"
	LiveStatusRunning     = "running"
	LiveStatusError       = "error"
	LiveStatusStopped     = "stopped"
)

var podErrorReasons = map[string]bool{
	"CrashLoopBackOff":           true,
	"ImagePullBackOff":           true,
	"ErrImagePull":               true,
	"CreateContainerConfigError": true,
	"InvalidImageName":           true,
}

// DeriveDeploymentStatus turns a Deployment and its pods into the status shown
// to users. A nil deployment means it does not exist.
func DeriveDeploymentStatus(deployment *appsv1.Deployment, pods []corev1.Pod) dto.LiveDeploymentStatus {
	if deployment == nil {
		return dto.LiveDeploymentStatus{
			Status:        LiveStatusNotDeployed,
			Detail:        "Resource not found",
			ReadyReplicas: "0/0",
		}
	}

	desired := int32(1)
	if deployment.Spec.Replicas != nil {
		desired = *deployment.Spec.Replicas
	}
	ready := deployment.Status.ReadyReplicas
	replicas := fmt.Sprintf("%d/%d", ready, desired)

	if desired == 0 {
		return dto.LiveDeploymentStatus{Status: LiveStatusStopped, Detail: "Scaled to 0", ReadyReplicas: "0/0"}
	}
	if ready == desired {
		return dto.LiveDeploymentStatus{Status: LiveStatusRunning, Detail: "All replicas ready", ReadyReplicas: replicas}
	}

	if len(pods) == 0 {
		return dto.LiveDeploymentStatus{
			Status:        LiveStatusDeploying,
			Detail:        "Waiting for pods to be created...",
			ReadyReplicas: replicas,
		}
	}

	for i := range pods {
		if detail, failed := podErrorDetail(&pods[i]); failed {
			return dto.LiveDeploymentStatus{Status: LiveStatusError, Detail: detail, ReadyReplicas: replicas}
		}
	}

	phase := pods[0].Status.Phase
	if phase == corev1.PodPending {
		return dto.LiveDeploymentStatus{
			Status:        LiveStatusDeploying,
			Detail:        "Pod is Pending (scheduling or pulling image)",
			ReadyReplicas: replicas,
		}
	}
	return dto.LiveDeploymentStatus{
		Status:        LiveStatusDeploying,
		Detail:        fmt.Sprintf("Pod Phase: %s, Waiting for readiness probe...", phase),
		ReadyReplicas: replicas,
	}
}

// APIErrorStatus is reported when the cluster could not be read
func APIErrorStatus(err error) dto.LiveDeploymentStatus {
	return dto.LiveDeploymentStatus{
		Status:        LiveStatusError,
		Detail:        fmt.Sprintf("K8s API Error: %v", err),
		ReadyReplicas: "?",
	}
}

func podErrorDetail(pod *corev1.Pod) (string, bool) {
	for _, cs := range pod.Status.ContainerStatuses {
		if waiting := cs.State.Waiting; waiting != nil && podErrorReasons[waiting.Reason] {
			return fmt.Sprintf("Pod Error: %s - %s", waiting.Reason, waiting.Message), true
		}
		if term := cs.State.Terminated; term != nil && term.ExitCode != 0 {
			return fmt.Sprintf("Container Terminated with exit code %d", term.ExitCode), true
		}
	}
	if pod.Status.Phase == corev1.PodFailed {
		return fmt.Sprintf("Pod Error: %s - %s", pod.Status.Reason, pod.Status.Message), true
	}
	return "", false
}
