package utils

import (
	"fmt"
	"strings"
)

const (
	tagStrategyBranchLatest = "branch_latest"
	shortSHALength          = 7
)

// ResolveImageTag picks the tag of a build: "<branch>-latest" for the
// branch_latest strategy, else the short commit sha, else manual-<6 hex>
func ResolveImageTag(strategy, commitSHA, branch string) string {
	if strings.TrimSpace(strategy) == tagStrategyBranchLatest && branch != "" {
		return SanitizeImageTag(branch + "-latest")
	}
	if commitSHA != "" && commitSHA != "latest" {
		if len(commitSHA) > shortSHALength {
			return commitSHA[:shortSHALength]
		}
		return commitSHA
	}
	return "manual-" + RandomHex(3)
}

// SanitizeImageTag maps characters a docker tag cannot hold ("feature/x") to '-'.
// A tag may not start with '.' or '-'.
func SanitizeImageTag(tag string) string {
	var b strings.Builder
	for i, r := range tag {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case i == 0:
			b.WriteRune('_')
		case r == '.' || r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := b.String()
	if len(out) > 128 {
		out = out[:128]
	}
	return out
}

// ImageReference joins a repository and a tag
func ImageReference(repository, tag string) string {
	return fmt.Sprintf("%s:%s", repository, tag)
}
