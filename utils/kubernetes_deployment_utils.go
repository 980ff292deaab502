package utils

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"
)

const (
	AppContainerName = "app"
	appPort          = 8000
	servicePort      = 80
	ManagedByLabel   = "managed-by"
	ManagedByValue   = "portal-controller"
)

// StudentWorkload carries everything needed to render a student's resources
type StudentWorkload struct {
	StudentCode string
	Image       string
	Namespace   string
	Domain      StudentDomain
}

// Name is shared by the Deployment, Service and Ingress
func (w StudentWorkload) Name() string {
	return StudentResourceName(w.StudentCode)
}

// Host is the public host routed by the Ingress
func (w StudentWorkload) Host() string {
	return w.Domain.FullDomain
}

// Labels are applied to every resource and pod of the workload
func (w StudentWorkload) Labels() map[string]string {
	return map[string]string{
		"app":          w.Name(),
		"student":      StudentDNSLabel(w.StudentCode),
		ManagedByLabel: ManagedByValue,
	}
}

// selector stays on "app" only; a Deployment selector is immutable
func (w StudentWorkload) selector() map[string]string {
	return map[string]string{"app": w.Name()}
}

// BuildStudentDeployment renders the single replica Deployment of a student project
func BuildStudentDeployment(w StudentWorkload) *appsv1.Deployment {
	probe := func(initialDelay, period int32) *corev1.Probe {
		return &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				TCPSocket: &corev1.TCPSocketAction{Port: intstr.FromInt32(appPort)},
			},
			InitialDelaySeconds: initialDelay,
			PeriodSeconds:       period,
			FailureThreshold:    3,
		}
	}

	maxSurge := intstr.FromInt32(1)
	maxUnavailable := intstr.FromInt32(0)

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      w.Name(),
			Namespace: w.Namespace,
			Labels:    w.Labels(),
		},
		Spec: appsv1.DeploymentSpec{
			Replicas:                ptr.To[int32](1),
			ProgressDeadlineSeconds: ptr.To[int32](600),
			Selector:                &metav1.LabelSelector{MatchLabels: w.selector()},
			Strategy: appsv1.DeploymentStrategy{
				Type: appsv1.RollingUpdateDeploymentStrategyType,
				RollingUpdate: &appsv1.RollingUpdateDeployment{
					MaxSurge:       &maxSurge,
					MaxUnavailable: &maxUnavailable,
				},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: w.Labels()},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyAlways,
					Containers: []corev1.Container{{
						Name:            AppContainerName,
						Image:           w.Image,
						ImagePullPolicy: corev1.PullAlways,
						Ports: []corev1.ContainerPort{{
							Name:          "http",
							ContainerPort: appPort,
							Protocol:      corev1.ProtocolTCP,
						}},
						Resources: corev1.ResourceRequirements{
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("500m"),
								corev1.ResourceMemory: resource.MustParse("512Mi"),
							},
							Requests: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("100m"),
								corev1.ResourceMemory: resource.MustParse("128Mi"),
							},
						},
						Env: []corev1.EnvVar{
							{Name: "STUDENT_CODE", Value: w.StudentCode},
							{Name: "APP_NAME", Value: w.Name()},
						},
						SecurityContext: &corev1.SecurityContext{
							RunAsNonRoot:             ptr.To(true),
							RunAsUser:                ptr.To[int64](1000),
							AllowPrivilegeEscalation: ptr.To(false),
						},
						ReadinessProbe: probe(5, 10),
						LivenessProbe:  probe(15, 20),
					}},
				},
			},
		},
	}
}

// BuildStudentService renders the ClusterIP Service in front of the app port
func BuildStudentService(w StudentWorkload) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      w.Name(),
			Namespace: w.Namespace,
			Labels:    w.Labels(),
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: w.selector(),
			Ports: []corev1.ServicePort{{
				Name:       "http",
				Port:       servicePort,
				TargetPort: intstr.FromString("http"),
				Protocol:   corev1.ProtocolTCP,
			}},
		},
	}
}

// BuildStudentIngress renders the traefik Ingress routing the student host
func BuildStudentIngress(w StudentWorkload) *networkingv1.Ingress {
	return &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      w.Name(),
			Namespace: w.Namespace,
			Labels:    w.Labels(),
			Annotations: map[string]string{
				"kubernetes.io/ingress.class":                      "traefik",
				"traefik.ingress.kubernetes.io/router.entrypoints": "web",
			},
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{StudentIngressRule(w)},
		},
	}
}

// StudentIngressRule is the single host rule of a student Ingress
func StudentIngressRule(w StudentWorkload) networkingv1.IngressRule {
	return networkingv1.IngressRule{
		Host: w.Host(),
		IngressRuleValue: networkingv1.IngressRuleValue{
			HTTP: &networkingv1.HTTPIngressRuleValue{
				Paths: []networkingv1.HTTPIngressPath{{
					Path:     "/",
					PathType: ptr.To(networkingv1.PathTypePrefix),
					Backend: networkingv1.IngressBackend{
						Service: &networkingv1.IngressServiceBackend{
							Name: w.Name(),
							Port: networkingv1.ServiceBackendPort{Number: servicePort},
						},
					},
				}},
			},
		},
	}
}

// ContainerImage returns the image of the named container, or "" if absent
func ContainerImage(deployment *appsv1.Deployment, container string) string {
	for _, c := range deployment.Spec.Template.Spec.Containers {
		if c.Name == container {
			return c.Image
		}
	}
	return ""
}

// SetContainerImage updates the image of the named container in place
func SetContainerImage(deployment *appsv1.Deployment, container, image string) bool {
	for i := range deployment.Spec.Template.Spec.Containers {
		if deployment.Spec.Template.Spec.Containers[i].Name == container {
			deployment.Spec.Template.Spec.Containers[i].Image = image
			return true
		}
	}
	return false
}
