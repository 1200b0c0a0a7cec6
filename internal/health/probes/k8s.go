package probes

import (
	"context"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"rollback-guard/internal/health"
)

// ClusterHealthProbe reports node and pod readiness for the target
// cluster the deployment lives on, walking both through client-go's
// typed clientset.
type ClusterHealthProbe struct {
	Component string
	Client    kubernetes.Interface
	Namespace string // pods namespace to sample; empty means all namespaces
}

func NewClusterHealthProbe(component string, client kubernetes.Interface, namespace string) *ClusterHealthProbe {
	return &ClusterHealthProbe{Component: component, Client: client, Namespace: namespace}
}

func (p *ClusterHealthProbe) Name() string { return p.Component }

func (p *ClusterHealthProbe) Execute(ctx context.Context) (health.Result, error) {
	nodes, err := p.Client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return health.Result{}, err
	}
	pods, err := p.Client.CoreV1().Pods(p.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return health.Result{}, err
	}

	readyNodes, totalNodes := countReadyNodes(nodes.Items)
	readyPods, totalPods := countReadyPods(pods.Items)

	nodeReadyPct := ratioPercent(readyNodes, totalNodes)
	podReadyPct := ratioPercent(readyPods, totalPods)
	score := (nodeReadyPct + podReadyPct) / 2

	status := "HEALTHY"
	switch {
	case nodeReadyPct < 50 || podReadyPct < 50:
		status = "CRITICAL"
	case nodeReadyPct < 90 || podReadyPct < 90:
		status = "DEGRADED"
	}

	return health.Result{
		Component: p.Component,
		CheckType: "INFRASTRUCTURE",
		Status:    status,
		Score:     score,
		Metrics: map[string]float64{
			"nodes_ready_percent": nodeReadyPct,
			"pods_ready_percent":  podReadyPct,
			"nodes_total":         float64(totalNodes),
			"pods_total":          float64(totalPods),
		},
	}, nil
}

func countReadyNodes(nodes []corev1.Node) (ready, total int) {
	total = len(nodes)
	for _, n := range nodes {
		for _, cond := range n.Status.Conditions {
			if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
				ready++
				break
			}
		}
	}
	return ready, total
}

func countReadyPods(pods []corev1.Pod) (ready, total int) {
	total = len(pods)
	for _, pod := range pods {
		for _, cond := range pod.Status.Conditions {
			if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
				ready++
				break
			}
		}
	}
	return ready, total
}

func ratioPercent(numerator, denominator int) float64 {
	if denominator == 0 {
		return 100
	}
	return float64(numerator) / float64(denominator) * 100
}
