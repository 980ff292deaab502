package utils

import (
	"context"
	"fmt"
	"io"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// MaxBuildLogBytes caps the archived log of a single build
const MaxBuildLogBytes = 1 << 20

// BuildLogContainers are read in pipeline order
var BuildLogContainers = []string{GitCloneContainer, KanikoContainer}

// ListJobPods returns the pods created for a Job
func ListJobPods(ctx context.Context, clientset kubernetes.Interface, namespace, jobName string) ([]corev1.Pod, error) {
	pods, err := clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("job-name=%s", jobName),
	})
	if err != nil {
		return nil, err
	}
	return pods.Items, nil
}

// ReadContainerLogs reads at most limit bytes of a container's log
func ReadContainerLogs(ctx context.Context, clientset kubernetes.Interface, namespace, podName, container string, limit int64) (string, error) {
	opts := &corev1.PodLogOptions{Container: container}
	if limit > 0 {
		opts.LimitBytes = &limit
	}
	stream, err := clientset.CoreV1().Pods(namespace).GetLogs(podName, opts).Stream(ctx)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	reader := io.Reader(stream)
	if limit > 0 {
		reader = io.LimitReader(stream, limit)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CollectBuildLogs gathers the git-clone and kaniko logs of the given pods into
// one document with a "--- <container> ---" header per section. captured is
// false when no container produced any output.
func CollectBuildLogs(ctx context.Context, clientset kubernetes.Interface, namespace string, pods []corev1.Pod) (content string, captured bool) {
	var b strings.Builder
	for _, pod := range pods {
		for _, container := range BuildLogContainers {
			logs, err := ReadContainerLogs(ctx, clientset, namespace, pod.Name, container, MaxBuildLogBytes)
			if err != nil || logs == "" {
				continue
			}
			captured = true
			fmt.Fprintf(&b, "--- %s ---\n", container)
			b.WriteString(logs)
			if !strings.HasSuffix(logs, "\n") {
				b.WriteString("\n")
			}
		}
	}
	return CapBuildLog(b.String()), captured
}

// CapBuildLog keeps the tail of an oversized log, where build errors are
func CapBuildLog(content string) string {
	if len(content) <= MaxBuildLogBytes {
		return content
	}
	const marker = "... [truncated] ...\n"
	return marker + content[len(content)-(MaxBuildLogBytes-len(marker)):]
}
