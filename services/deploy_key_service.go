package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"go.uber.org/zap"
)

// DeployKeyService generates per-student git deploy keys and registers them on Gitea
type DeployKeyService struct {
	configs     *repositories.BuildConfigRepository
	buildConfig *BuildConfigService
	gitea       *utils.GiteaClient
	generateKey func(comment string) (utils.DeployKeyPair, error)
}

func NewDeployKeyService(configs *repositories.BuildConfigRepository, buildConfig *BuildConfigService, gitea *utils.GiteaClient) *DeployKeyService {
	return &DeployKeyService{
		configs:     configs,
		buildConfig: buildConfig,
		gitea:       gitea,
		generateKey: utils.GenerateDeployKeyPair,
	}
}

// GenerateDeployKey creates a keypair for the student. An existing key is only
// replaced with force. Failing to attach the key to Gitea does not fail the call.
func (s *DeployKeyService) GenerateDeployKey(ctx context.Context, student models.Student, req dto.DeployKeyRequest) (*dto.DeployKeyResponse, error) {
	cfg, err := s.buildConfig.Ensure(student)
	if err != nil {
		return nil, err
	}
	if cfg.HasDeployKey() && !req.Force {
		return nil, newError(ErrKeyExists, "Deploy key already exists for student %s; pass force to rotate it", student.StudentCode)
	}

	title := fmt.Sprintf("portal-%s", utils.StudentDNSLabel(student.StudentCode))
	pair, err := s.generateKey(title)
	if err != nil {
		return nil, err
	}

	createdAt := time.Now().UTC()
	if err := s.configs.ReplaceDeployKey(cfg.ID, pair.PublicKey, pair.PrivateKey, pair.Fingerprint, createdAt); err != nil {
		return nil, err
	}
	cfg.DeployKeyPublic = pair.PublicKey
	cfg.DeployKeyPrivate = pair.PrivateKey
	cfg.DeployKeyFingerprint = pair.Fingerprint
	cfg.DeployKeyCreatedAt = &createdAt
	zap.S().Infof("🔑 Deploy key %s generated for student %s", pair.Fingerprint, student.StudentCode)

	resp := &dto.DeployKeyResponse{BuildConfig: cfg}
	if req.AttachToGitea != nil && !*req.AttachToGitea {
		return resp, nil
	}

	switch {
	case cfg.RepoURL == "":
		resp.Warning = "Deploy key generated but the build config has no repo_url to attach it to"
	default:
		err := s.gitea.CreateDeployKey(ctx, cfg.RepoURL, title, pair.PublicKey)
		switch {
		case err == nil:
			resp.Attached = true
		case errors.Is(err, utils.ErrGiteaNotConfigured):
			resp.Warning = "Deploy key generated but Gitea is not configured; add it to the repository manually"
		default:
			zap.S().Warnf("⚠️ Failed to attach deploy key for %s: %v", student.StudentCode, err)
			resp.Warning = fmt.Sprintf("Deploy key generated but could not be attached to Gitea: %v", err)
		}
	}
	return resp, nil
}
