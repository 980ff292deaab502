package dto

import "time"

// DeployRequest deploys an explicit image
type DeployRequest struct {
	Image       string `json:"image" binding:"required"`
	ProjectType string `json:"project_type" binding:"required"`
}

// DeployResponse is returned once the workload has been applied
type DeployResponse struct {
	Status  string `json:"status"`
	Action  string `json:"action"`
	Message string `json:"message"`
	URL     string `json:"url"`
}

// DeployFromBuildRequest deploys a successful build; without build_id the latest one is used
type DeployFromBuildRequest struct {
	BuildID     string `json:"build_id"`
	ProjectType string `json:"project_type" binding:"required"`
}

type DeployFromBuildResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	BuildID string `json:"build_id"`
	Image   string `json:"image"`
	URL     string `json:"url"`
}

// DeleteDeploymentResult lists what was removed from the cluster
type DeleteDeploymentResult struct {
	Success bool     `json:"success"`
	Status  string   `json:"status"`
	Deleted []string `json:"deleted"`
	Errors  []string `json:"errors"`
	Message string   `json:"message"`
}

// LiveDeploymentStatus is computed from the cluster on every request
type LiveDeploymentStatus struct {
	Status        string `json:"status"`
	Detail        string `json:"detail"`
	ReadyReplicas string `json:"ready_replicas"`
}

// ClusterResource is one student Deployment found in a student namespace
type ClusterResource struct {
	Name          string     `json:"name"`
	Namespace     string     `json:"namespace"`
	StudentCode   string     `json:"student_code"`
	ProjectType   string     `json:"project_type"`
	Image         string     `json:"image"`
	Replicas      int32      `json:"replicas"`
	ReadyReplicas int32      `json:"ready_replicas"`
	Host          string     `json:"host,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
}
