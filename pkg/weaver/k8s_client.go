package weaver

import (
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
)

// K8sClient is the small, behavior-typed subset of k8s.io/client-go the
// provisioner needs.
// Grounded on Aureuma-si's silexa/agents/manager kubeClient, generalized
// from its ad-hoc dyad-pod resolution into the full pod lifecycle the
// provisioner drives.
type K8sClient interface {
	CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error)
	GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error)
	ListPods(ctx context.Context, namespace, labelSelector string) (*corev1.PodList, error)
	DeletePod(ctx context.Context, namespace, name string, gracePeriodSeconds int64) error
	GetPodLogs(ctx context.Context, namespace, name, container string, tail *int64, timestamps bool) (io.ReadCloser, error)
	Exec(ctx context.Context, namespace, name, container string, cmd []string, stdin io.Reader, stdout, stderr io.Writer, tty bool) error
	GetNamespace(ctx context.Context, namespace string) (*corev1.Namespace, error)
}
