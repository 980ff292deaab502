package dto

import "github.com/portal-orchestrator/models"

// TriggerBuildRequest optionally pins the branch or commit of a manual build
type TriggerBuildRequest struct {
	Branch    string `json:"branch"`
	CommitSHA string `json:"commit_sha"`
}

// BuildLogsResponse distinguishes "no logs yet" (available=false) from a fetch failure
type BuildLogsResponse struct {
	BuildID   string `json:"build_id"`
	Content   string `json:"content"`
	Available bool   `json:"available"`
	Live      bool   `json:"live"`
}

// BuildConfigRequest updates a build config; nil fields keep their value
type BuildConfigRequest struct {
	RepoURL        *string             `json:"repo_url"`
	Branch         *string             `json:"branch"`
	DockerfilePath *string             `json:"dockerfile_path"`
	ContextPath    *string             `json:"context_path"`
	RegistryID     *string             `json:"registry_id"`
	ImageRepo      *string             `json:"image_repo"`
	TagStrategy    *models.TagStrategy `json:"tag_strategy"`
	AutoBuild      *bool               `json:"auto_build"`
	AutoDeploy     *bool               `json:"auto_deploy"`
}

// DeployKeyRequest controls key generation
type DeployKeyRequest struct {
	Force         bool  `json:"force"`
	AttachToGitea *bool `json:"attach_to_gitea"`
}

// DeployKeyResponse is the updated build config plus the Gitea attach outcome.
// The config fields are serialized at the top level.
type DeployKeyResponse struct {
	models.BuildConfig
	Attached bool   `json:"attached"`
	Warning  string `json:"warning,omitempty"`
}

// ManualBuildRequest is the body of POST /builds/trigger
type ManualBuildRequest struct {
	StudentID string `json:"student_id"`
	TriggerBuildRequest
}
