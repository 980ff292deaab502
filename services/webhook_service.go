package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"go.uber.org/zap"
)

// BuildTrigger starts builds; implemented by BuildService
type BuildTrigger interface {
	TriggerBuild(ctx context.Context, studentID string, req dto.TriggerBuildRequest) (*models.Build, error)
}

// WebhookService turns Gitea push deliveries into builds for every build
// config of the pushed repository that has auto_build enabled
type WebhookService struct {
	configs *repositories.BuildConfigRepository
	builds  BuildTrigger
	secret  string
}

func NewWebhookService(configs *repositories.BuildConfigRepository, builds BuildTrigger, secret string) *WebhookService {
	return &WebhookService{configs: configs, builds: builds, secret: secret}
}

// HandleGiteaPush verifies and dispatches one delivery. The signature is only
// checked when a webhook secret is configured.
func (s *WebhookService) HandleGiteaPush(ctx context.Context, event string, body []byte, signature string) (dto.WebhookResult, error) {
	result := dto.WebhookResult{Event: event, Triggered: []string{}, Skipped: []string{}}

	if s.secret != "" {
		if signature == "" {
			return result, newError(ErrForbidden, "Missing webhook signature")
		}
		if !utils.VerifyWebhookSignature(s.secret, body, signature) {
			return result, newError(ErrForbidden, "Invalid webhook signature")
		}
	}

	var payload dto.GiteaPushEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return result, wrapError(ErrValidation, err, "Invalid JSON")
	}
	if event != "push" {
		result.Message = "Ignored event type"
		return result, nil
	}

	repoURL := pushRepoURL(payload)
	normalized := utils.NormalizeRepoURL(repoURL)
	if normalized == "" {
		return result, newError(ErrValidation, "Missing repository URL")
	}

	configs, err := s.configs.FindAll()
	if err != nil {
		return result, err
	}

	branch := utils.BranchFromRef(payload.Ref)
	commit := payload.After
	if n := len(payload.Commits); n > 0 && payload.Commits[n-1].ID != "" {
		commit = payload.Commits[n-1].ID
	}
	if commit == "" {
		commit = "latest"
	}

	matched := 0
	for _, cfg := range configs {
		if utils.NormalizeRepoURL(cfg.RepoURL) != normalized {
			continue
		}
		matched++
		applyConfigDefaults(&cfg)

		switch {
		case !cfg.AutoBuild:
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: Auto build disabled", cfg.StudentID))
			continue
		case cfg.Branch != branch:
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: Branch mismatch, skipping", cfg.StudentID))
			continue
		}

		build, err := s.builds.TriggerBuild(ctx, cfg.StudentID, dto.TriggerBuildRequest{Branch: branch, CommitSHA: commit})
		if err != nil {
			if !errors.Is(err, ErrBuildInProgress) {
				zap.S().Errorf("❌ Failed to trigger build via webhook for %s: %v", cfg.StudentID, err)
			}
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: %v", cfg.StudentID, err))
			continue
		}
		result.Triggered = append(result.Triggered, build.ID)
	}

	switch {
	case matched == 0:
		zap.S().Warnf("⚠️ No build config found for repo: %s", repoURL)
		result.Message = "No config found"
	case len(result.Triggered) > 0:
		zap.S().Infof("🪝 Push to %s@%s triggered %d build(s)", normalized, branch, len(result.Triggered))
		result.Message = "Build triggered"
	default:
		result.Message = "No build triggered"
	}
	return result, nil
}

func pushRepoURL(payload dto.GiteaPushEvent) string {
	for _, candidate := range []string{payload.Repository.SSHURL, payload.Repository.CloneURL, payload.Repository.HTMLURL} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}
