package dto

// GiteaPushEvent is the subset of a Gitea push payload the orchestrator reads
type GiteaPushEvent struct {
	Ref     string `json:"ref"`
	Before  string `json:"before"`
	After   string `json:"after"`
	Commits []struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	} `json:"commits"`
	Repository struct {
		FullName string `json:"full_name"`
		CloneURL string `json:"clone_url"`
		SSHURL   string `json:"ssh_url"`
		HTMLURL  string `json:"html_url"`
	} `json:"repository"`
}

// WebhookResult lists the builds started by one delivery
type WebhookResult struct {
	Event     string   `json:"event"`
	Triggered []string `json:"triggered"`
	Skipped   []string `json:"skipped"`
	Message   string   `json:"message"`
}
