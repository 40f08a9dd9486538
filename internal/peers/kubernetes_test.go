package peers

import (
	"context"
	"reflect"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func exporterPod(name, ns, ip string, phase corev1.PodPhase, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: ns, Labels: labels},
		Status:     corev1.PodStatus{Phase: phase, PodIP: ip},
	}
}

func TestKubernetesProvider_Peers(t *testing.T) {
	sel := map[string]string{"app.kubernetes.io/name": "fancontrol-temp-exporter"}
	client := fake.NewSimpleClientset(
		exporterPod("exp-a", "cluster", "10.42.0.5", corev1.PodRunning, sel),
		exporterPod("exp-b", "cluster", "10.42.0.6", corev1.PodPending, sel),
		exporterPod("exp-c", "cluster", "", corev1.PodRunning, sel),
		exporterPod("exp-d", "other", "10.42.1.7", corev1.PodRunning, sel),
		exporterPod("web", "cluster", "10.42.0.9", corev1.PodRunning, map[string]string{"app": "web"}),
	)

	p := NewKubernetesProvider(client, KubernetesConfig{Namespace: "cluster"}, ParseList("node1"), nil)
	list, err := p.Peers(context.Background())
	if err != nil {
		t.Fatalf("Peers: %v", err)
	}
	want := []string{"node1", "http://10.42.0.5:8080/temp"}
	if !reflect.DeepEqual(list.Addrs(), want) {
		t.Fatalf("got %v, want %v", list.Addrs(), want)
	}
}

func TestKubernetesProvider_CustomPort(t *testing.T) {
	sel := map[string]string{"tier": "exporter"}
	client := fake.NewSimpleClientset(exporterPod("exp", "ns", "10.0.0.2", corev1.PodRunning, sel))

	p := NewKubernetesProvider(client, KubernetesConfig{
		Namespace:     "ns",
		LabelSelector: "tier=exporter",
		Port:          2505,
	}, List{}, nil)
	list, err := p.Peers(context.Background())
	if err != nil {
		t.Fatalf("Peers: %v", err)
	}
	if got := list.Addrs(); len(got) != 1 || got[0] != "http://10.0.0.2:2505/temp" {
		t.Fatalf("unexpected peers %v", got)
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(ParseList("a,b"))
	l, err := p.Peers(context.Background())
	if err != nil || !l.SameSet(ParseList("b,a")) {
		t.Fatalf("static provider returned %v, %v", l.Addrs(), err)
	}
}
