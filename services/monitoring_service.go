package services

import (
	"context"
	"sort"

	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/utils"
	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

const (
	OverviewHealthy            = "Healthy"
	OverviewMetricsUnavailable = "Metrics unavailable"
	OverviewClusterUnavailable = "Cluster unavailable"
	usageUnavailable           = "N/A"
)

// MonitoringService summarises cluster capacity and usage for the dashboard.
// The metrics client is optional; without it usage fields are left empty.
type MonitoringService struct {
	clientset kubernetes.Interface
	metrics   metricsclient.Interface
}

func NewMonitoringService(clientset kubernetes.Interface, metrics metricsclient.Interface) *MonitoringService {
	return &MonitoringService{clientset: clientset, metrics: metrics}
}

// GetOverview counts nodes and pods and relates node usage to capacity
func (s *MonitoringService) GetOverview(ctx context.Context) dto.ClusterOverview {
	nodes, err := s.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		zap.S().Warnf("⚠️ Failed to list nodes: %v", err)
		return dto.ClusterOverview{Status: OverviewClusterUnavailable}
	}
	nodeCount := len(nodes.Items)
	pods, err := s.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		zap.S().Warnf("⚠️ Failed to list pods: %v", err)
		return dto.ClusterOverview{Nodes: &nodeCount, Status: OverviewClusterUnavailable}
	}

	podCount := len(pods.Items)
	overview := dto.ClusterOverview{
		Nodes:  &nodeCount,
		Pods:   &podCount,
		Status: OverviewMetricsUnavailable,
	}

	var cpuCapacity, memoryCapacity int64
	for _, node := range nodes.Items {
		cpuCapacity += node.Status.Capacity.Cpu().MilliValue()
		memoryCapacity += node.Status.Capacity.Memory().Value()
	}

	if s.metrics == nil {
		return overview
	}
	nodeMetrics, err := s.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
	if err != nil {
		zap.S().Warnf("⚠️ Metrics server unavailable: %v", err)
		return overview
	}

	var cpuUsed, memoryUsed int64
	for _, item := range nodeMetrics.Items {
		cpuUsed += item.Usage.Cpu().MilliValue()
		memoryUsed += item.Usage.Memory().Value()
	}
	overview.CPUPercentage = utils.UsagePercentage(cpuUsed, cpuCapacity)
	overview.MemoryPercentage = utils.UsagePercentage(memoryUsed, memoryCapacity)
	overview.Status = OverviewHealthy
	return overview
}

// GetNodes lists the nodes with their readiness, roles and, when the
// metrics server answers, their current usage
func (s *MonitoringService) GetNodes(ctx context.Context) ([]dto.NodeSummary, error) {
	nodes, err := s.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, wrapError(ErrInfrastructure, err, "Failed to list nodes: %v", err)
	}

	usage := map[string]corev1.ResourceList{}
	if s.metrics != nil {
		nodeMetrics, err := s.metrics.MetricsV1beta1().NodeMetricses().List(ctx, metav1.ListOptions{})
		if err != nil {
			zap.S().Warnf("⚠️ Metrics server unavailable: %v", err)
		} else {
			for _, item := range nodeMetrics.Items {
				usage[item.Name] = item.Usage
			}
		}
	}

	summaries := make([]dto.NodeSummary, 0, len(nodes.Items))
	for _, node := range nodes.Items {
		summary := dto.NodeSummary{
			Name:           node.Name,
			Status:         utils.NodeReadyStatus(node),
			Roles:          utils.NodeRoles(node.Labels),
			KubeletVersion: node.Status.NodeInfo.KubeletVersion,
			OSImage:        node.Status.NodeInfo.OSImage,
			CPU: dto.NodeResource{
				Capacity:    node.Status.Capacity.Cpu().String(),
				Allocatable: node.Status.Allocatable.Cpu().String(),
				Usage:       usageUnavailable,
			},
			Memory: dto.NodeResource{
				Capacity:    node.Status.Capacity.Memory().String(),
				Allocatable: node.Status.Allocatable.Memory().String(),
				Usage:       usageUnavailable,
			},
		}
		if used, ok := usage[node.Name]; ok {
			summary.CPU.Usage = utils.FormatMilliCPU(used.Cpu().MilliValue())
			summary.CPU.Percentage = utils.UsagePercentage(used.Cpu().MilliValue(), node.Status.Capacity.Cpu().MilliValue())
			summary.Memory.Usage = utils.FormatBytesToHumanReadable(used.Memory().Value())
			summary.Memory.Percentage = utils.UsagePercentage(used.Memory().Value(), node.Status.Capacity.Memory().Value())
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

// GetNamespaceUsage returns per-namespace active pod counts and summed pod
// usage, sorted by namespace
func (s *MonitoringService) GetNamespaceUsage(ctx context.Context) ([]dto.NamespaceUsage, error) {
	namespaces, err := s.clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, wrapError(ErrInfrastructure, err, "Failed to list namespaces: %v", err)
	}
	pods, err := s.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, wrapError(ErrInfrastructure, err, "Failed to list pods: %v", err)
	}

	active := make(map[string]int, len(namespaces.Items))
	for _, ns := range namespaces.Items {
		active[ns.Name] = 0
	}
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
			continue
		}
		active[pod.Namespace]++
	}

	cpu, memory, metricsOK := s.podUsage(ctx)

	usage := make([]dto.NamespaceUsage, 0, len(active))
	for name, count := range active {
		item := dto.NamespaceUsage{
			Namespace:  name,
			ActivePods: count,
			CPU:        usageUnavailable,
			Memory:     usageUnavailable,
		}
		if metricsOK {
			item.CPU = utils.FormatMilliCPU(cpu[name])
			item.Memory = utils.FormatBytesToHumanReadable(memory[name])
		}
		usage = append(usage, item)
	}
	sort.Slice(usage, func(i, j int) bool { return usage[i].Namespace < usage[j].Namespace })
	return usage, nil
}

// podUsage sums pod metrics per namespace in millicores and bytes
func (s *MonitoringService) podUsage(ctx context.Context) (map[string]int64, map[string]int64, bool) {
	if s.metrics == nil {
		return nil, nil, false
	}
	podMetrics, err := s.metrics.MetricsV1beta1().PodMetricses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		zap.S().Warnf("⚠️ Pod metrics unavailable: %v", err)
		return nil, nil, false
	}

	cpu := map[string]int64{}
	memory := map[string]int64{}
	for _, pod := range podMetrics.Items {
		for _, container := range pod.Containers {
			cpu[pod.Namespace] += container.Usage.Cpu().MilliValue()
			memory[pod.Namespace] += container.Usage.Memory().Value()
		}
	}
	return cpu, memory, true
}
