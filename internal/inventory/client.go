package inventory

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/u2takey/go-utils/filesystem/homedir"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"

	"github.com/podwatch/podwatch/internal/formatting"
	"github.com/podwatch/podwatch/internal/types"
)

const fetchTimeout = 30 * time.Second

// Client adapts the Kubernetes API to the snapshot model. It is the
// system's only view of the cluster.
type Client struct {
	clientset kubernetes.Interface
	timeout   time.Duration
}

// NewClient builds a client from the in-cluster service account,
// falling back to the local kubeconfig.
func NewClient() (*Client, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		var kubeconfig string
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("failed to load kubernetes configuration: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return NewWithClientset(clientset), nil
}

// NewWithClientset wraps an existing clientset; tests inject fakes here.
func NewWithClientset(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset, timeout: fetchTimeout}
}

// Result is one full inventory observation.
type Result struct {
	Snapshots map[types.SnapshotKey]types.ResourceSnapshot
	NodeStats []types.NodeStats
}

// ListResources fetches the current pod (and optionally node) state.
// The whole fetch shares one bounded timeout so a slow API server
// cannot stall the poll cycle indefinitely.
func (c *Client) ListResources(ctx context.Context, namespaces []string, includeNodes bool) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	now := time.Now().UTC()
	watched := make(map[string]bool, len(namespaces))
	for _, ns := range namespaces {
		watched[ns] = true
	}

	pods, err := c.clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}

	services, err := c.clientset.CoreV1().Services(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	servicesByNamespace := make(map[string][]corev1.Service)
	for _, svc := range services.Items {
		servicesByNamespace[svc.Namespace] = append(servicesByNamespace[svc.Namespace], svc)
	}

	result := &Result{Snapshots: make(map[types.SnapshotKey]types.ResourceSnapshot)}
	for i := range pods.Items {
		pod := &pods.Items[i]
		if len(watched) > 0 && !watched[pod.Namespace] {
			continue
		}
		snap := c.podSnapshot(pod, servicesByNamespace[pod.Namespace], now)
		result.Snapshots[snap.Key()] = snap
	}

	if includeNodes {
		if err := c.collectNodes(ctx, pods.Items, result, now); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (c *Client) podSnapshot(pod *corev1.Pod, services []corev1.Service, now time.Time) types.ResourceSnapshot {
	snap := types.ResourceSnapshot{
		Kind:       types.KindPod,
		Namespace:  pod.Namespace,
		Name:       pod.Name,
		Status:     podStatus(pod),
		Node:       pod.Spec.NodeName,
		InternalIP: pod.Status.PodIP,
		CreatedAt:  pod.CreationTimestamp.Time,
		ObservedAt: now,
		Resources:  types.ResourceUsage{CPU: "0", Memory: "0", Disk: "0"},
	}

	if len(pod.Spec.Containers) > 0 {
		container := pod.Spec.Containers[0]
		snap.Image = container.Image
		if limits := container.Resources.Limits; limits != nil {
			if cpu, ok := limits[corev1.ResourceCPU]; ok {
				snap.Resources.CPU = formatting.FormatCPU(cpu)
			}
			if mem, ok := limits[corev1.ResourceMemory]; ok {
				snap.Resources.Memory = formatting.FormatMemory(mem)
			}
			if disk, ok := limits[corev1.ResourceEphemeralStorage]; ok {
				snap.Resources.Disk = formatting.FormatMemory(disk)
			}
		}
	}

	snap.Ports = podPorts(pod, services)
	for _, p := range snap.Ports {
		if p.ExternalIP != "" {
			snap.ExternalIP = p.ExternalIP
			break
		}
	}
	return snap
}

// podStatus prefers a waiting container's reason (CrashLoopBackOff,
// ImagePullBackOff) over the coarse pod phase.
func podStatus(pod *corev1.Pod) string {
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
			return cs.State.Waiting.Reason
		}
	}
	return string(pod.Status.Phase)
}

func podPorts(pod *corev1.Pod, services []corev1.Service) []types.PortInfo {
	var ports []types.PortInfo
	for _, container := range pod.Spec.Containers {
		for _, p := range container.Ports {
			protocol := string(p.Protocol)
			if protocol == "" {
				protocol = "TCP"
			}
			ports = append(ports, types.PortInfo{
				Port:     p.ContainerPort,
				Protocol: protocol,
				Name:     p.Name,
			})
		}
	}

	for _, svc := range services {
		if len(svc.Spec.Selector) == 0 || !selectorMatches(svc.Spec.Selector, pod.Labels) {
			continue
		}
		var externalIP string
		isLB := svc.Spec.Type == corev1.ServiceTypeLoadBalancer
		if isLB && len(svc.Status.LoadBalancer.Ingress) > 0 {
			externalIP = svc.Status.LoadBalancer.Ingress[0].IP
		}
		for i := range ports {
			for _, sp := range svc.Spec.Ports {
				if sp.TargetPort.IntValue() != int(ports[i].Port) {
					continue
				}
				ports[i].Exposed = true
				ports[i].ServiceName = svc.Name
				ports[i].ServicePort = sp.Port
				ports[i].LoadBalancer = isLB
				ports[i].ExternalIP = externalIP
			}
		}
	}
	return ports
}

func selectorMatches(selector, labels map[string]string) bool {
	for k, v := range selector {
		if labels[k] != v {
			return false
		}
	}
	return true
}

func (c *Client) collectNodes(ctx context.Context, pods []corev1.Pod, result *Result, now time.Time) error {
	nodes, err := c.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list nodes: %w", err)
	}

	podsPerNode := make(map[string]int)
	for _, pod := range pods {
		if pod.Spec.NodeName != "" {
			podsPerNode[pod.Spec.NodeName]++
		}
	}

	for i := range nodes.Items {
		node := &nodes.Items[i]
		status := nodeStatus(node)

		var internalIP, externalIP string
		for _, addr := range node.Status.Addresses {
			switch addr.Type {
			case corev1.NodeInternalIP:
				internalIP = addr.Address
			case corev1.NodeExternalIP:
				externalIP = addr.Address
			}
		}

		snap := types.ResourceSnapshot{
			Kind:       types.KindNode,
			Name:       node.Name,
			Status:     status,
			InternalIP: internalIP,
			ExternalIP: externalIP,
			CreatedAt:  node.CreationTimestamp.Time,
			ObservedAt: now,
			Resources: types.ResourceUsage{
				CPU:    formatting.FormatCPU(node.Status.Allocatable[corev1.ResourceCPU]),
				Memory: formatting.FormatMemory(node.Status.Allocatable[corev1.ResourceMemory]),
				Disk:   "0",
			},
		}
		result.Snapshots[snap.Key()] = snap

		result.NodeStats = append(result.NodeStats, types.NodeStats{
			Name:           node.Name,
			Status:         status,
			CPU:            snap.Resources.CPU,
			Memory:         snap.Resources.Memory,
			Pods:           podsPerNode[node.Name],
			CapacityCPU:    formatting.FormatCPU(node.Status.Capacity[corev1.ResourceCPU]),
			CapacityMemory: formatting.FormatMemory(node.Status.Capacity[corev1.ResourceMemory]),
		})
	}
	return nil
}

func nodeStatus(node *corev1.Node) string {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			if cond.Status == corev1.ConditionTrue {
				return "Ready"
			}
			return "NotReady"
		}
	}
	return "Unknown"
}

// DeleteResource removes a pod so its controller recreates it. This is
// the manual restart action; nodes cannot be restarted this way.
func (c *Client) DeleteResource(ctx context.Context, key types.SnapshotKey) error {
	if key.Kind != types.KindPod {
		return fmt.Errorf("cannot delete resource of kind %s", key.Kind)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.clientset.CoreV1().Pods(key.Namespace).Delete(ctx, key.Name, metav1.DeleteOptions{}); err != nil {
		return fmt.Errorf("failed to delete pod %s/%s: %w", key.Namespace, key.Name, err)
	}
	klog.Infof("Pod restarted: %s/%s", key.Namespace, key.Name)
	return nil
}

// Ping verifies the API server is reachable.
func (c *Client) Ping() error {
	if _, err := c.clientset.Discovery().ServerVersion(); err != nil {
		return fmt.Errorf("kubernetes API unreachable: %w", err)
	}
	return nil
}
