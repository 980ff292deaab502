package utils

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// IsSSHRepoURL reports whether a clone URL needs a deploy key
func IsSSHRepoURL(repoURL string) bool {
	repoURL = strings.TrimSpace(repoURL)
	return strings.HasPrefix(repoURL, "git@") || strings.HasPrefix(repoURL, "ssh://")
}

// splitRepoURL returns host, port (0 if absent) and path of a git URL in
// scp-like, ssh:// or http(s):// form
func splitRepoURL(repoURL string) (host string, port int, repoPath string) {
	repoURL = strings.TrimSpace(repoURL)
	switch {
	case strings.HasPrefix(repoURL, "git@"):
		hostPath := strings.SplitN(repoURL, "@", 2)[1]
		parts := strings.SplitN(hostPath, ":", 2)
		host = parts[0]
		if len(parts) == 2 {
			repoPath = parts[1]
		}
	case strings.Contains(repoURL, "://"):
		parsed, err := url.Parse(repoURL)
		if err != nil {
			return "", 0, ""
		}
		host = parsed.Hostname()
		if p := parsed.Port(); p != "" {
			port, _ = strconv.Atoi(p)
		}
		repoPath = parsed.Path
	default:
		parts := strings.SplitN(repoURL, "/", 2)
		host = parts[0]
		if len(parts) == 2 {
			repoPath = parts[1]
		}
	}
	repoPath = strings.TrimSuffix(strings.Trim(repoPath, "/"), ".git")
	return host, port, repoPath
}

// NormalizeRepoURL reduces any clone URL to "host/owner/repo" in lowercase so
// ssh and https forms of the same repository compare equal. Returns "" when
// the URL has no host or path.
func NormalizeRepoURL(repoURL string) string {
	host, _, repoPath := splitRepoURL(repoURL)
	if host == "" || repoPath == "" {
		return ""
	}
	return strings.ToLower(host + "/" + repoPath)
}

// ParseRepoOwnerName extracts the owner and repository name of a clone URL
func ParseRepoOwnerName(repoURL string) (string, string, error) {
	_, _, repoPath := splitRepoURL(repoURL)
	parts := strings.Split(repoPath, "/")
	if len(parts) < 2 || parts[len(parts)-2] == "" || parts[len(parts)-1] == "" {
		return "", "", fmt.Errorf("cannot parse owner/repo from %q", repoURL)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}

// GitSSHHostPort returns the ssh host and explicit port (0 when default) of an ssh clone URL
func GitSSHHostPort(repoURL string) (string, int) {
	if !IsSSHRepoURL(repoURL) {
		return "", 0
	}
	host, port, _ := splitRepoURL(repoURL)
	return host, port
}

// RewriteGitHost points ssh clones of the public git host at its in-cluster
// service, so build pods do not leave the cluster to fetch sources
func RewriteGitHost(repoURL, internalHost string, internalPort int, externalHost string) string {
	if repoURL == "" || internalHost == "" || externalHost == "" {
		return repoURL
	}
	if internalPort == 0 {
		internalPort = 22
	}

	switch {
	case strings.HasPrefix(repoURL, "git@"):
		host, _, repoPath := splitRepoURL(repoURL)
		if host != externalHost || repoPath == "" {
			return repoURL
		}
		rest := strings.SplitN(repoURL, ":", 2)[1]
		return fmt.Sprintf("ssh://git@%s:%d/%s", internalHost, internalPort, rest)
	case strings.HasPrefix(repoURL, "ssh://"):
		parsed, err := url.Parse(repoURL)
		if err != nil || parsed.Hostname() != externalHost {
			return repoURL
		}
		user := "git"
		if parsed.User != nil && parsed.User.Username() != "" {
			user = parsed.User.Username()
		}
		return fmt.Sprintf("ssh://%s@%s:%d/%s", user, internalHost, internalPort, strings.TrimLeft(parsed.Path, "/"))
	}
	return repoURL
}
