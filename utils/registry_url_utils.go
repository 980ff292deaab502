package utils

import (
	"strings"
)

// CleanRegistryURL removes protocol prefix and trailing slashes, giving the
// registry host used in image references and docker auth configs
func CleanRegistryURL(registryURL string) string {
	cleaned := strings.TrimSpace(registryURL)
	if _, rest, ok := strings.Cut(cleaned, "://"); ok {
		host, _, _ := strings.Cut(rest, "/")
		return host
	}
	return strings.Trim(cleaned, "/")
}

// RegistryBaseURL returns the API base of a registry, defaulting to https
func RegistryBaseURL(registryURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(registryURL), "/")
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return trimmed
	}
	return "https://" + trimmed
}

// IsInsecureRegistry reports whether pushes must go over plain http
func IsInsecureRegistry(registryURL string) bool {
	return strings.HasPrefix(strings.TrimSpace(registryURL), "http://")
}

// RenderImageRepo fills the image repository template. It returns "" when the
// template needs a registry and none is known.
func RenderImageRepo(template, registryHost, studentCode string) string {
	if strings.TrimSpace(template) == "" {
		return ""
	}
	if strings.Contains(template, "{{registry}}") && registryHost == "" {
		return ""
	}
	repo := strings.ReplaceAll(template, "{{registry}}", registryHost)
	repo = strings.ReplaceAll(repo, "{{student_code}}", strings.ToLower(studentCode))
	return strings.Trim(repo, "/")
}
