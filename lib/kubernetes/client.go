package kubernetes

import (
	"fmt"

	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Options selects how the cluster is reached. The first match wins:
// in-cluster service account, explicit kubeconfig, kubectl proxy, default kubeconfig.
type Options struct {
	InCluster      bool
	KubeconfigPath string
	ProxyURL       string
}

// Client bundles the core and metrics API clients. Both are interfaces so
// tests can hand in fake clientsets.
type Client struct {
	Clientset     kubernetes.Interface
	MetricsClient metricsclient.Interface
}

// NewClient builds a Client for the given options
func NewClient(opts Options) (*Client, error) {
	config, err := RestConfig(opts)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	client := &Client{Clientset: clientset}
	metrics, err := metricsclient.NewForConfig(config)
	if err != nil {
		// the dashboard degrades without metrics-server
		zap.S().Warnf("⚠️ Unable to create metrics client: %v", err)
	} else {
		client.MetricsClient = metrics
	}
	return client, nil
}

// RestConfig resolves the REST config for the given options
func RestConfig(opts Options) (*rest.Config, error) {
	switch {
	case opts.InCluster:
		config, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load in-cluster config: %w", err)
		}
		zap.S().Info("☸️ Using in-cluster Kubernetes config")
		return config, nil
	case opts.KubeconfigPath != "":
		config, err := clientcmd.BuildConfigFromFlags("", opts.KubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubeconfig %s: %w", opts.KubeconfigPath, err)
		}
		zap.S().Infof("☸️ Using kubeconfig %s", opts.KubeconfigPath)
		return config, nil
	case opts.ProxyURL != "":
		zap.S().Infof("☸️ Using kubectl proxy at %s", opts.ProxyURL)
		return &rest.Config{
			Host: opts.ProxyURL,
			// kubectl proxy terminates auth
			TLSClientConfig: rest.TLSClientConfig{Insecure: true},
		}, nil
	}

	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load default kubeconfig: %w", err)
	}
	zap.S().Info("☸️ Using default kubeconfig")
	return config, nil
}
