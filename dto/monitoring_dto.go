package dto

// ClusterOverview summarises node and pod counts and cluster utilisation.
// Counts are nil when the cluster could not be listed.
type ClusterOverview struct {
	Nodes            *int     `json:"nodes"`
	Pods             *int     `json:"pods"`
	CPUPercentage    *float64 `json:"cpu_percentage"`
	MemoryPercentage *float64 `json:"memory_percentage"`
	Status           string   `json:"status"`
}

// NamespaceUsage is the running pod count and summed usage of one namespace
type NamespaceUsage struct {
	Namespace  string `json:"namespace"`
	ActivePods int    `json:"active_pods"`
	CPU        string `json:"cpu"`
	Memory     string `json:"memory"`
}

// NodeResource is the capacity and usage of one resource on a node
type NodeResource struct {
	Capacity    string   `json:"capacity"`
	Allocatable string   `json:"allocatable"`
	Usage       string   `json:"usage"`
	Percentage  *float64 `json:"percentage"`
}

// NodeSummary is one row of the node table
type NodeSummary struct {
	Name           string       `json:"name"`
	Status         string       `json:"status"`
	Roles          []string     `json:"roles"`
	KubeletVersion string       `json:"kubelet_version"`
	OSImage        string       `json:"os_image"`
	CPU            NodeResource `json:"cpu"`
	Memory         NodeResource `json:"memory"`
}
