package peers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"fancontrol/internal/logger"
)

const (
	serviceAccountDir = "/var/run/secrets/kubernetes.io/serviceaccount"

	// DefaultLabelSelector matches the temperature exporter pods.
	DefaultLabelSelector = "app.kubernetes.io/name=fancontrol-temp-exporter"
)

// ErrNotInCluster is returned when in-cluster discovery is requested outside a pod.
var ErrNotInCluster = errors.New("not running inside a kubernetes pod")

// KubernetesConfig selects the exporter pods to poll.
type KubernetesConfig struct {
	Namespace     string
	LabelSelector string
	Port          int
	Path          string
}

// KubernetesProvider lists Running exporter pods and merges their URLs with a
// static list.
type KubernetesProvider struct {
	client kubernetes.Interface
	cfg    KubernetesConfig
	static List
	log    *logger.Logger
}

// NewKubernetesProvider builds a provider around an existing clientset.
// An empty namespace is resolved from the pod's service account.
func NewKubernetesProvider(client kubernetes.Interface, cfg KubernetesConfig, static List, log *logger.Logger) *KubernetesProvider {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.LabelSelector == "" {
		cfg.LabelSelector = DefaultLabelSelector
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultExporterPort
	}
	if cfg.Path == "" {
		cfg.Path = DefaultExporterPath
	}
	return &KubernetesProvider{client: client, cfg: cfg, static: static, log: log}
}

// InCluster reports whether a service account token is mounted.
func InCluster() bool {
	_, err := os.Stat(serviceAccountDir + "/token")
	return err == nil
}

// NewInClusterClient returns a clientset using the pod's service account.
func NewInClusterClient() (kubernetes.Interface, error) {
	if !InCluster() {
		return nil, ErrNotInCluster
	}
	rc, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("load in-cluster config: %w", err)
	}
	cs, err := kubernetes.NewForConfig(rc)
	if err != nil {
		return nil, fmt.Errorf("create clientset: %w", err)
	}
	return cs, nil
}

func currentNamespace() (string, error) {
	b, err := os.ReadFile(serviceAccountDir + "/namespace")
	if err != nil {
		return "", fmt.Errorf("read pod namespace: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Peers returns the static peers followed by every Running pod with an IP.
func (p *KubernetesProvider) Peers(ctx context.Context) (List, error) {
	ns := p.cfg.Namespace
	if ns == "" {
		var err error
		if ns, err = currentNamespace(); err != nil {
			return List{}, err
		}
	}

	pods, err := p.client.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{LabelSelector: p.cfg.LabelSelector})
	if err != nil {
		return List{}, fmt.Errorf("list pods in %q (%s): %w", ns, p.cfg.LabelSelector, err)
	}

	addrs := p.static.Addrs()
	discovered := 0
	for _, pod := range pods.Items {
		if pod.Status.Phase != corev1.PodRunning {
			p.log.Debugw("discovery_skip_pod", "pod", pod.Name, "phase", pod.Status.Phase)
			continue
		}
		if pod.Status.PodIP == "" {
			p.log.Debugw("discovery_skip_pod", "pod", pod.Name, "reason", "no ip")
			continue
		}
		addrs = append(addrs, "http://"+net.JoinHostPort(pod.Status.PodIP, strconv.Itoa(p.cfg.Port))+p.cfg.Path)
		discovered++
	}

	p.log.Debugw("discovery_done", "namespace", ns, "static", p.static.Len(), "discovered", discovered)
	return NewList(addrs...), nil
}
