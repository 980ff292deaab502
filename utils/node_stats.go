package utils

import (
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"
)

const nodeRolePrefix = "node-role.kubernetes.io/"

// NodeReadyStatus returns "Ready", or "NotReady" with the reason of the
// failing Ready condition when there is one
func NodeReadyStatus(node corev1.Node) string {
	for _, condition := range node.Status.Conditions {
		if condition.Type != corev1.NodeReady {
			continue
		}
		if condition.Status == corev1.ConditionTrue {
			return "Ready"
		}
		if condition.Reason != "" {
			return "NotReady: " + condition.Reason
		}
	}
	return "NotReady"
}

// NodeRoles collects node-role.kubernetes.io/* labels and the legacy
// kubernetes.io/role label. Unlabelled nodes are workers.
func NodeRoles(labels map[string]string) []string {
	roles := make([]string, 0)
	for key := range labels {
		if role := strings.TrimPrefix(key, nodeRolePrefix); role != key && role != "" {
			roles = append(roles, role)
		}
	}
	if role, ok := labels["kubernetes.io/role"]; ok && role != "" {
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return []string{"worker"}
	}
	sort.Strings(roles)
	return roles
}
