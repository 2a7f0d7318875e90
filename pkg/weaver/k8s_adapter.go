package weaver

import (
	"context"
	"io"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
)

// ClientsetK8sClient adapts a real *kubernetes.Clientset to K8sClient,
// grounded on Aureuma-si's silexa/agents/manager kubeClient (same
// in-cluster-config-first construction, same SPDY exec executor).
type ClientsetK8sClient struct {
	clientset *kubernetes.Clientset
	config    *rest.Config
}

// NewClientsetK8sClient builds a K8sClient from an already-constructed
// clientset and its rest.Config (needed separately for the exec
// subresource's SPDY upgrade).
func NewClientsetK8sClient(clientset *kubernetes.Clientset, config *rest.Config) *ClientsetK8sClient {
	return &ClientsetK8sClient{clientset: clientset, config: config}
}

func (c *ClientsetK8sClient) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	return c.clientset.CoreV1().Pods(namespace).Create(ctx, pod, metav1.CreateOptions{})
}

func (c *ClientsetK8sClient) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	return c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
}

func (c *ClientsetK8sClient) ListPods(ctx context.Context, namespace, labelSelector string) (*corev1.PodList, error) {
	return c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: labelSelector})
}

func (c *ClientsetK8sClient) DeletePod(ctx context.Context, namespace, name string, gracePeriodSeconds int64) error {
	return c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{
		GracePeriodSeconds: &gracePeriodSeconds,
	})
}

func (c *ClientsetK8sClient) GetPodLogs(ctx context.Context, namespace, name, container string, tail *int64, timestamps bool) (io.ReadCloser, error) {
	req := c.clientset.CoreV1().Pods(namespace).GetLogs(name, &corev1.PodLogOptions{
		Container:  container,
		TailLines:  tail,
		Timestamps: timestamps,
	})
	return req.Stream(ctx)
}

func (c *ClientsetK8sClient) Exec(ctx context.Context, namespace, name, container string, cmd []string, stdin io.Reader, stdout, stderr io.Writer, tty bool) error {
	req := c.clientset.CoreV1().RESTClient().Post().
		Namespace(namespace).
		Resource("pods").
		Name(name).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   cmd,
			Stdin:     stdin != nil,
			Stdout:    stdout != nil,
			Stderr:    stderr != nil,
			TTY:       tty,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(c.config, "POST", req.URL())
	if err != nil {
		return err
	}
	return exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
		Tty:    tty,
	})
}

func (c *ClientsetK8sClient) GetNamespace(ctx context.Context, namespace string) (*corev1.Namespace, error) {
	return c.clientset.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{})
}
