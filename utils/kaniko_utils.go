package utils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

const (
	GitCloneContainer = "git-clone"
	KanikoContainer   = "kaniko"

	buildRepoDir       = "/workspace/repo"
	workspaceVolume    = "workspace"
	gitSecretVolume    = "git-secret"
	registryAuthVolume = "registry-config"
	buildJobTTLSeconds = 3600
)

// KanikoBuildSpec describes one image build
type KanikoBuildSpec struct {
	JobName   string
	Namespace string
	BuildID   string
	StudentID string

	RepoURL        string
	Branch         string
	CommitSHA      string
	DockerfilePath string
	ContextPath    string
	Destination    string

	// GitSecretName holds the deploy key (id_rsa); empty for anonymous https clones
	GitSecretName string
	// RegistrySecretName holds a dockerconfigjson; empty for anonymous pushes
	RegistrySecretName string
	InsecureRegistry   bool

	KanikoImage    string
	GitImage       string
	ActiveDeadline time.Duration
}

// BuildJobName names the Job of a build: build-{id}-{6 hex}
func BuildJobName(buildID string) string {
	return fmt.Sprintf("build-%s-%s", NormalizeK8sName(buildID), RandomHex(3))
}

// BuildLabels are attached to the Job and its pod
func BuildLabels(buildID, studentID, jobName string) map[string]string {
	return map[string]string{
		"app":        "kaniko-build",
		"build-id":   buildID,
		"student-id": studentID,
		"job-name":   jobName,
	}
}

// BuildKanikoJob creates the batch Job cloning the repository in an init
// container and building/pushing the image with kaniko
func BuildKanikoJob(spec KanikoBuildSpec) *batchv1.Job {
	labels := BuildLabels(spec.BuildID, spec.StudentID, spec.JobName)

	volumes := []corev1.Volume{{
		Name:         workspaceVolume,
		VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}},
	}}
	cloneMounts := []corev1.VolumeMount{{Name: workspaceVolume, MountPath: "/workspace"}}
	kanikoMounts := []corev1.VolumeMount{{Name: workspaceVolume, MountPath: "/workspace"}}

	if spec.GitSecretName != "" {
		volumes = append(volumes, corev1.Volume{
			Name: gitSecretVolume,
			VolumeSource: corev1.VolumeSource{Secret: &corev1.SecretVolumeSource{
				SecretName:  spec.GitSecretName,
				DefaultMode: ptr.To[int32](0400),
			}},
		})
		cloneMounts = append(cloneMounts, corev1.VolumeMount{Name: gitSecretVolume, MountPath: "/etc/ssh-key", ReadOnly: true})
	}
	if spec.RegistrySecretName != "" {
		volumes = append(volumes, corev1.Volume{
			Name: registryAuthVolume,
			VolumeSource: corev1.VolumeSource{Secret: &corev1.SecretVolumeSource{
				SecretName: spec.RegistrySecretName,
				Items:      []corev1.KeyToPath{{Key: corev1.DockerConfigJsonKey, Path: "config.json"}},
			}},
		})
		kanikoMounts = append(kanikoMounts, corev1.VolumeMount{Name: registryAuthVolume, MountPath: "/kaniko/.docker/"})
	}

	gitHost, gitPort := GitSSHHostPort(spec.RepoURL)
	cloneScript := CreateGitCloneScript(spec.RepoURL, spec.CommitSHA, spec.Branch, gitHost, gitPort)

	args := []string{
		fmt.Sprintf("--dockerfile=%s", dockerfileFullPath(spec.DockerfilePath)),
		fmt.Sprintf("--context=dir://%s", contextFullPath(spec.ContextPath)),
		fmt.Sprintf("--destination=%s", spec.Destination),
		"--cache=true",
		"--cache-run-layers=true",
		"--cache-copy-layers=true",
		"--compressed-caching=false",
		"--verbosity=info",
	}
	if spec.InsecureRegistry {
		args = append(args, "--insecure", "--skip-tls-verify")
	}

	jobSpec := batchv1.JobSpec{
		BackoffLimit:            ptr.To[int32](0),
		TTLSecondsAfterFinished: ptr.To[int32](buildJobTTLSeconds),
		Template: corev1.PodTemplateSpec{
			ObjectMeta: metav1.ObjectMeta{Labels: labels},
			Spec: corev1.PodSpec{
				RestartPolicy: corev1.RestartPolicyNever,
				InitContainers: []corev1.Container{{
					Name:         GitCloneContainer,
					Image:        spec.GitImage,
					Command:      []string{"/bin/sh", "-c"},
					Args:         []string{cloneScript},
					VolumeMounts: cloneMounts,
					Resources: corev1.ResourceRequirements{
						Requests: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("100m"),
							corev1.ResourceMemory: resource.MustParse("128Mi"),
						},
						Limits: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("500m"),
							corev1.ResourceMemory: resource.MustParse("512Mi"),
						},
					},
				}},
				Containers: []corev1.Container{{
					Name:         KanikoContainer,
					Image:        spec.KanikoImage,
					Args:         args,
					VolumeMounts: kanikoMounts,
					Resources: corev1.ResourceRequirements{
						Requests: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("500m"),
							corev1.ResourceMemory: resource.MustParse("1Gi"),
						},
						Limits: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("2"),
							corev1.ResourceMemory: resource.MustParse("4Gi"),
						},
					},
				}},
				Volumes: volumes,
			},
		},
	}
	if spec.ActiveDeadline > 0 {
		jobSpec.ActiveDeadlineSeconds = ptr.To(int64(spec.ActiveDeadline.Seconds()))
	}

	return &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name:      spec.JobName,
			Namespace: spec.Namespace,
			Labels:    labels,
		},
		Spec: jobSpec,
	}
}

// CreateGitCloneScript renders the init container script. SSH clones copy the
// mounted deploy key and disable host key checking.
func CreateGitCloneScript(repoURL, commitSHA, branch, sshHost string, sshPort int) string {
	lines := []string{"set -e"}
	if IsSSHRepoURL(repoURL) && sshHost != "" {
		sshCommand := "ssh -i /root/.ssh/id_rsa -o StrictHostKeyChecking=no -o UserKnownHostsFile=/dev/null"
		if sshPort != 0 {
			sshCommand = fmt.Sprintf("%s -p %d", sshCommand, sshPort)
		}
		lines = append(lines,
			"mkdir -p /root/.ssh",
			"cp /etc/ssh-key/id_rsa /root/.ssh/id_rsa",
			"chmod 600 /root/.ssh/id_rsa",
			fmt.Sprintf("export GIT_SSH_COMMAND=%s", shellQuote(sshCommand)),
		)
	}

	lines = append(lines,
		"rm -rf /workspace/*",
		fmt.Sprintf("git clone %s %s", shellQuote(repoURL), buildRepoDir),
		fmt.Sprintf("cd %s", buildRepoDir),
	)

	switch {
	case commitSHA != "" && commitSHA != "latest":
		lines = append(lines, fmt.Sprintf("git checkout %s", shellQuote(commitSHA)))
	case branch != "":
		b := shellQuote(branch)
		lines = append(lines,
			fmt.Sprintf("if git show-ref --verify --quiet refs/heads/%s; then", b),
			fmt.Sprintf("  git checkout %s", b),
			fmt.Sprintf("elif git show-ref --verify --quiet refs/remotes/origin/%s; then", b),
			fmt.Sprintf("  git checkout -b %s origin/%s", b, b),
			"else",
			fmt.Sprintf("  echo \"Branch %s not found, using default\"", strings.ReplaceAll(branch, "\"", "")),
			"fi",
		)
	}
	lines = append(lines, `echo "Checked out $(git rev-parse HEAD)"`)
	return strings.Join(lines, "\n")
}

// BuildDeployKeySecret stores a student's private deploy key for clone pods
func BuildDeployKeySecret(name, namespace, privateKey string) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"managed-by": "portal-controller"},
		},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{"id_rsa": privateKey},
	}
}

// BuildRegistryAuthSecret renders the docker config kaniko uses to push
func BuildRegistryAuthSecret(name, namespace, registryHost, username, password string) (*corev1.Secret, error) {
	auth := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	config := map[string]interface{}{
		"auths": map[string]interface{}{
			registryHost: map[string]string{
				"username": username,
				"password": password,
				"auth":     auth,
			},
		},
	}
	payload, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to encode docker config: %w", err)
	}
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    map[string]string{"managed-by": "portal-controller"},
		},
		Type: corev1.SecretTypeDockerConfigJson,
		Data: map[string][]byte{corev1.DockerConfigJsonKey: payload},
	}, nil
}

func normalizeRelativePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "." {
		return "."
	}
	return strings.TrimLeft(p, "/")
}

func contextFullPath(contextPath string) string {
	rel := normalizeRelativePath(contextPath)
	if rel == "." {
		return buildRepoDir
	}
	return path.Join(buildRepoDir, rel)
}

func dockerfileFullPath(dockerfilePath string) string {
	dockerfilePath = strings.TrimSpace(dockerfilePath)
	if strings.HasPrefix(dockerfilePath, "/") {
		return dockerfilePath
	}
	rel := normalizeRelativePath(dockerfilePath)
	if rel == "." {
		return path.Join(buildRepoDir, "Dockerfile")
	}
	return path.Join(buildRepoDir, rel)
}

// shellQuote wraps a value in single quotes for /bin/sh
func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
