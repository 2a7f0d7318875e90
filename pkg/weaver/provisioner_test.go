package weaver

import (
	"context"
	"io"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/loom/internal/apperr"
)

type fakeK8sClient struct {
	pods map[string]*corev1.Pod
	ns   map[string]*corev1.Namespace
}

func newFakeK8sClient() *fakeK8sClient {
	return &fakeK8sClient{pods: map[string]*corev1.Pod{}, ns: map[string]*corev1.Namespace{"default": {}}}
}

func (f *fakeK8sClient) CreatePod(ctx context.Context, namespace string, pod *corev1.Pod) (*corev1.Pod, error) {
	pod.Status.Phase = corev1.PodRunning
	pod.CreationTimestamp = metav1.NewTime(time.Now())
	f.pods[pod.Name] = pod
	return pod, nil
}

func (f *fakeK8sClient) GetPod(ctx context.Context, namespace, name string) (*corev1.Pod, error) {
	pod, ok := f.pods[name]
	if !ok {
		return nil, apperr.NotFound("pod")
	}
	return pod, nil
}

func (f *fakeK8sClient) ListPods(ctx context.Context, namespace, labelSelector string) (*corev1.PodList, error) {
	list := &corev1.PodList{}
	for _, p := range f.pods {
		list.Items = append(list.Items, *p)
	}
	return list, nil
}

func (f *fakeK8sClient) DeletePod(ctx context.Context, namespace, name string, gracePeriodSeconds int64) error {
	delete(f.pods, name)
	return nil
}

func (f *fakeK8sClient) GetPodLogs(ctx context.Context, namespace, name, container string, tail *int64, timestamps bool) (io.ReadCloser, error) {
	return io.NopCloser(nil), nil
}

func (f *fakeK8sClient) Exec(ctx context.Context, namespace, name, container string, cmd []string, stdin io.Reader, stdout, stderr io.Writer, tty bool) error {
	return nil
}

func (f *fakeK8sClient) GetNamespace(ctx context.Context, namespace string) (*corev1.Namespace, error) {
	ns, ok := f.ns[namespace]
	if !ok {
		return nil, apperr.NotFound("namespace")
	}
	return ns, nil
}

func testConfig() Config {
	return Config{Namespace: "default", MaxConcurrent: 2, ServerURL: "https://loom.example", AuditEnabled: false}
}

func TestProvisionerCreateHappyPath(t *testing.T) {
	client := newFakeK8sClient()
	p := NewProvisioner(client, testConfig())

	w, err := p.Create(context.Background(), CreateRequest{Image: "docker.io/library/python:3.12", OwnerUserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, w.Status)
	assert.Equal(t, float64(DefaultLifetimeHours), w.LifetimeHours)
}

func TestProvisionerCreateRejectsOversizedLifetime(t *testing.T) {
	client := newFakeK8sClient()
	p := NewProvisioner(client, testConfig())

	_, err := p.Create(context.Background(), CreateRequest{Image: "python", LifetimeHours: MaxLifetimeHours + 1})
	require.Error(t, err)
}

func TestProvisionerCreateRejectsOverConcurrencyLimit(t *testing.T) {
	client := newFakeK8sClient()
	cfg := testConfig()
	cfg.MaxConcurrent = 1
	p := NewProvisioner(client, cfg)

	_, err := p.Create(context.Background(), CreateRequest{Image: "python"})
	require.NoError(t, err)

	_, err = p.Create(context.Background(), CreateRequest{Image: "python"})
	require.Error(t, err)
}

func TestProvisionerValidateNamespaceFailsFastOnMissingNamespace(t *testing.T) {
	client := newFakeK8sClient()
	cfg := testConfig()
	cfg.Namespace = "does-not-exist"
	p := NewProvisioner(client, cfg)

	err := p.ValidateNamespace(context.Background())
	assert.Error(t, err)
}

func TestProvisionerCleanupDeletesExpiredWeavers(t *testing.T) {
	client := newFakeK8sClient()
	p := NewProvisioner(client, testConfig())

	w, err := p.Create(context.Background(), CreateRequest{Image: "python", LifetimeHours: 1})
	require.NoError(t, err)

	// Force the pod to look old enough to be reclaimed.
	pod := client.pods[w.ID.AsK8sName()]
	pod.CreationTimestamp = metav1.NewTime(time.Now().Add(-2 * time.Hour))

	result, err := p.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.Contains(t, result.DeletedIDs, w.ID)
}
