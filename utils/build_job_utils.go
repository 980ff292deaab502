package utils

import (
	"fmt"
	"strings"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
)

// JobPhase is the coarse outcome of a build Job
type JobPhase string

const (
	JobPhaseRunning   JobPhase = "running"
	JobPhaseSucceeded JobPhase = "succeeded"
	// JobPhaseFailed means the build itself failed (bad Dockerfile, compile error)
	JobPhaseFailed JobPhase = "failed"
	// JobPhaseInfraError means the pipeline could not run (clone, image pull, missing job)
	JobPhaseInfraError JobPhase = "infra_error"
)

const maxTerminationMessage = 500

// JobOutcome is the classification of a build Job and its pods
type JobOutcome struct {
	Phase   JobPhase
	Message string
}

func (o JobOutcome) Terminal() bool {
	return o.Phase != JobPhaseRunning
}

var imagePullReasons = map[string]bool{
	"ImagePullBackOff": true,
	"ErrImagePull":     true,
	"InvalidImageName": true,
}

// ClassifyBuildJob decides whether a build Job is still running, succeeded,
// failed on the build itself or failed for infrastructure reasons
func ClassifyBuildJob(job *batchv1.Job, pods []corev1.Pod) JobOutcome {
	if job == nil {
		return JobOutcome{Phase: JobPhaseInfraError, Message: "Build job not found"}
	}
	if job.Status.Succeeded > 0 || jobCondition(job, batchv1.JobComplete) != nil {
		return JobOutcome{Phase: JobPhaseSucceeded, Message: "Build succeeded"}
	}

	for i := range pods {
		if outcome, ok := classifyBuildPod(&pods[i]); ok {
			return outcome
		}
	}

	if cond := jobCondition(job, batchv1.JobFailed); cond != nil {
		return JobOutcome{
			Phase:   JobPhaseFailed,
			Message: stageMessage("job", cond.Reason, cond.Message),
		}
	}
	if job.Status.Failed > 0 {
		return JobOutcome{Phase: JobPhaseFailed, Message: "job: Failed: build pod failed"}
	}
	return JobOutcome{Phase: JobPhaseRunning}
}

func classifyBuildPod(pod *corev1.Pod) (JobOutcome, bool) {
	for _, status := range pod.Status.InitContainerStatuses {
		if waiting := status.State.Waiting; waiting != nil && imagePullReasons[waiting.Reason] {
			return infraOutcome(status.Name, waiting.Reason, waiting.Message), true
		}
		if term := status.State.Terminated; term != nil && term.ExitCode != 0 {
			return infraOutcome(status.Name, terminatedReason(term), term.Message), true
		}
	}

	for _, status := range pod.Status.ContainerStatuses {
		if waiting := status.State.Waiting; waiting != nil {
			switch {
			case imagePullReasons[waiting.Reason]:
				return infraOutcome(status.Name, waiting.Reason, waiting.Message), true
			case waiting.Reason == "CreateContainerConfigError" || waiting.Reason == "CreateContainerError":
				return infraOutcome(status.Name, waiting.Reason, waiting.Message), true
			}
		}
		if term := status.State.Terminated; term != nil && term.ExitCode != 0 {
			return JobOutcome{
				Phase:   JobPhaseFailed,
				Message: stageMessage(status.Name, terminatedReason(term), term.Message),
			}, true
		}
	}

	if pod.Status.Phase == corev1.PodFailed && pod.Status.Reason != "" {
		return JobOutcome{
			Phase:   JobPhaseFailed,
			Message: stageMessage("pod", pod.Status.Reason, pod.Status.Message),
		}, true
	}
	return JobOutcome{}, false
}

func infraOutcome(stage, reason, message string) JobOutcome {
	return JobOutcome{Phase: JobPhaseInfraError, Message: stageMessage(stage, reason, message)}
}

func terminatedReason(term *corev1.ContainerStateTerminated) string {
	if term.Reason != "" {
		return term.Reason
	}
	return fmt.Sprintf("exit code %d", term.ExitCode)
}

// stageMessage formats "<stage>: <reason>: <message>" with the message truncated
func stageMessage(stage, reason, message string) string {
	message = strings.TrimSpace(message)
	if message == "" {
		return fmt.Sprintf("%s: %s", stage, reason)
	}
	return fmt.Sprintf("%s: %s: %s", stage, reason, TruncateString(message, maxTerminationMessage))
}

func jobCondition(job *batchv1.Job, conditionType batchv1.JobConditionType) *batchv1.JobCondition {
	for i := range job.Status.Conditions {
		c := &job.Status.Conditions[i]
		if c.Type == conditionType && c.Status == corev1.ConditionTrue {
			return c
		}
	}
	return nil
}

// TruncateString cuts s to max bytes, marking the cut with "..."
func TruncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
