package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const (
	maxK8sNameLength = 63
	fallbackK8sName  = "student"
)

var (
	invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)
	repeatedDashes   = regexp.MustCompile(`-{2,}`)
)

// NormalizeK8sName turns an arbitrary code into a DNS-1123 label. Names that
// are too long keep a sha1 suffix of the original so they stay unique.
func NormalizeK8sName(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	if lowered == "" {
		return fallbackK8sName
	}

	normalized := invalidNameChars.ReplaceAllString(lowered, "-")
	normalized = strings.Trim(repeatedDashes.ReplaceAllString(normalized, "-"), "-")
	if normalized == "" {
		normalized = fallbackK8sName
	}

	if len(normalized) > maxK8sNameLength {
		sum := sha1.Sum([]byte(lowered))
		digest := hex.EncodeToString(sum[:])[:6]
		trimmed := strings.TrimRight(normalized[:maxK8sNameLength-7], "-")
		normalized = fmt.Sprintf("%s-%s", trimmed, digest)
	}
	return normalized
}

// StudentResourceName is the shared name of a student's Deployment, Service and Ingress
func StudentResourceName(studentCode string) string {
	return "student-" + NormalizeK8sName(studentCode)
}

// StudentDNSLabel is the host label of a student's public domain
func StudentDNSLabel(studentCode string) string {
	return NormalizeK8sName(studentCode)
}

// StudentNamespaces maps a project type to the namespace hosting its workloads
var StudentNamespaces = map[string]string{
	"gd": "students-gd",
	"cd": "students-cd",
}

// NamespaceForProjectType returns the namespace of a project type and whether it is known
func NamespaceForProjectType(projectType string) (string, bool) {
	namespace, ok := StudentNamespaces[strings.ToLower(strings.TrimSpace(projectType))]
	return namespace, ok
}

// StudentDomain builds the host of a student project:
// {prefix}{dns label}.{project type}.{base}
type StudentDomain struct {
	HostPrefix   string
	DomainSuffix string
	FullDomain   string
}

// BuildStudentDomain derives the domain parts for a student project
func BuildStudentDomain(prefix, base, studentCode, projectType string) StudentDomain {
	prefix = strings.ToLower(prefix)
	base = strings.TrimLeft(strings.TrimSpace(base), ".")
	suffix := fmt.Sprintf("%s.%s", strings.ToLower(projectType), base)
	return StudentDomain{
		HostPrefix:   prefix,
		DomainSuffix: suffix,
		FullDomain:   fmt.Sprintf("%s%s.%s", prefix, StudentDNSLabel(studentCode), suffix),
	}
}
