package kubernetes

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"
)

// ApplySecret creates the secret or replaces the data of an existing one
func ApplySecret(ctx context.Context, clientset kubernetes.Interface, secret *corev1.Secret) error {
	secrets := clientset.CoreV1().Secrets(secret.Namespace)

	_, err := secrets.Create(ctx, secret, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create secret %s/%s: %w", secret.Namespace, secret.Name, err)
	}

	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		existing, err := secrets.Get(ctx, secret.Name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		existing.Type = secret.Type
		existing.Labels = secret.Labels
		existing.Data = secret.Data
		existing.StringData = secret.StringData
		_, err = secrets.Update(ctx, existing, metav1.UpdateOptions{})
		return err
	})
}
