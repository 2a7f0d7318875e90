package weaver

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/codeready-toolchain/loom/internal/apperr"
	"github.com/codeready-toolchain/loom/internal/ids"
)

// Config configures a Provisioner.
type Config struct {
	Namespace          string
	MaxConcurrent       int
	ServerURL          string
	SecretsServerURL   string
	AuditEnabled       bool
	AuditSidecarImage  string
	CleanupIntervalSecs int
}

// Provisioner manages weaver lifecycle against a K8sClient.
type Provisioner struct {
	client K8sClient
	cfg    Config
}

// NewProvisioner constructs a Provisioner. Callers must invoke
// ValidateNamespace at startup ( "Namespace validation": a missing
// namespace is a fatal configuration error).
func NewProvisioner(client K8sClient, cfg Config) *Provisioner {
	return &Provisioner{client: client, cfg: cfg}
}

// ValidateNamespace fails fast if the configured namespace doesn't exist.
func (p *Provisioner) ValidateNamespace(ctx context.Context) error {
	if _, err := p.client.GetNamespace(ctx, p.cfg.Namespace); err != nil {
		return fmt.Errorf("weaver namespace %q does not exist: %w", p.cfg.Namespace, err)
	}
	return nil
}

// Create provisions a new weaver pod's six-step algorithm.
func (p *Provisioner) Create(ctx context.Context, req CreateRequest) (Weaver, error) {
	lifetime, err := validateLifetime(req.LifetimeHours)
	if err != nil {
		return Weaver{}, err
	}

	active, err := p.countActive(ctx)
	if err != nil {
		return Weaver{}, fmt.Errorf("count active weavers: %w", err)
	}
	if active >= p.cfg.MaxConcurrent {
		return Weaver{}, apperr.RateLimited("weaver concurrency limit reached")
	}

	weaverID := ids.NewWeaverID()
	name := weaverID.AsK8sName()
	labels := BuildLabels(weaverID, req.OwnerUserID, req.OrgID, req.Repo, req.Image, p.cfg.AuditEnabled)
	labels[labelLifetimeHours] = strconv.FormatFloat(lifetime, 'f', -1, 64)

	pod := p.buildPodSpec(name, weaverID, req, labels)

	if _, err := p.client.CreatePod(ctx, p.cfg.Namespace, pod); err != nil {
		return Weaver{}, fmt.Errorf("create weaver pod: %w", err)
	}

	return p.pollUntilReady(ctx, weaverID, name, req)
}

func validateLifetime(requested float64) (float64, error) {
	if requested == 0 {
		return DefaultLifetimeHours, nil
	}
	if requested > MaxLifetimeHours {
		return 0, apperr.InvalidInput(fmt.Sprintf("lifetime_hours %.1f exceeds max %d", requested, MaxLifetimeHours))
	}
	return requested, nil
}

func (p *Provisioner) countActive(ctx context.Context) (int, error) {
	list, err := p.client.ListPods(ctx, p.cfg.Namespace, ManagedSelector)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, pod := range list.Items {
		if pod.Status.Phase == corev1.PodPending || pod.Status.Phase == corev1.PodRunning {
			count++
		}
	}
	return count, nil
}

func (p *Provisioner) buildPodSpec(name string, weaverID ids.WeaverID, req CreateRequest, labels map[string]string) *corev1.Pod {
	nonRoot := true
	noEscalation := false
	uid := int64(1000)
	gid := int64(1000)

	env := []corev1.EnvVar{
		{Name: "LOOM_SERVER_URL", Value: p.cfg.ServerURL},
		{Name: "LOOM_WEAVER_ID", Value: weaverID.String()},
		{Name: "LOOM_REPO", Value: req.Repo},
		{Name: "LOOM_BRANCH", Value: req.Branch},
	}
	if p.cfg.SecretsServerURL != "" {
		env = append(env, corev1.EnvVar{Name: "LOOM_SECRETS_SERVER_URL", Value: p.cfg.SecretsServerURL})
	}
	for k, v := range req.Env {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}

	memLimit := req.Resources.MemoryLimitBytes
	if memLimit == 0 {
		memLimit = DefaultMemoryLimitBytes
	}
	limits := corev1.ResourceList{
		corev1.ResourceMemory: *resource.NewQuantity(memLimit, resource.BinarySI),
	}
	if req.Resources.CPULimitMillis > 0 {
		limits[corev1.ResourceCPU] = *resource.NewMilliQuantity(req.Resources.CPULimitMillis, resource.DecimalSI)
	}

	mainContainer := corev1.Container{
		Name:    "weaver",
		Image:   req.Image,
		Command: req.Command,
		Args:    req.Args,
		Env:     env,
		Resources: corev1.ResourceRequirements{
			Limits: limits,
		},
		TTY:   true,
		Stdin: true,
		SecurityContext: &corev1.SecurityContext{
			RunAsUser:                &uid,
			RunAsGroup:               &gid,
			RunAsNonRoot:             &nonRoot,
			AllowPrivilegeEscalation: &noEscalation,
			Capabilities:             &corev1.Capabilities{Drop: []corev1.Capability{"ALL"}},
		},
	}
	if req.Workdir != "" {
		mainContainer.WorkingDir = req.Workdir
	}

	containers := []corev1.Container{mainContainer}
	var annotations map[string]string
	if len(req.Tags) > 0 {
		annotations = req.Tags
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: corev1.PodSpec{
			Containers:    containers,
			RestartPolicy: corev1.RestartPolicyNever,
		},
	}

	if p.cfg.AuditEnabled {
		shareProcessNamespace := true
		pod.Spec.ShareProcessNamespace = &shareProcessNamespace
		pod.Spec.Containers = append(pod.Spec.Containers, p.buildAuditSidecar(name))
		pod.Spec.Volumes = append(pod.Spec.Volumes, auditSidecarVolumes()...)
	}

	return pod
}

func (p *Provisioner) buildAuditSidecar(podName string) corev1.Container {
	root := int64(0)
	readOnlyRoot := true
	noEscalation := false

	return corev1.Container{
		Name:  "audit-sidecar",
		Image: p.cfg.AuditSidecarImage,
		Ports: []corev1.ContainerPort{
			{Name: "metrics", ContainerPort: 9090},
			{Name: "health", ContainerPort: 9091},
		},
		Env: []corev1.EnvVar{
			{Name: "LOOM_POD_NAME", ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: "metadata.name"},
			}},
			{Name: "LOOM_POD_NAMESPACE", ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: "metadata.namespace"},
			}},
		},
		SecurityContext: &corev1.SecurityContext{
			RunAsUser:                &root,
			ReadOnlyRootFilesystem:   &readOnlyRoot,
			AllowPrivilegeEscalation: &noEscalation,
			Capabilities: &corev1.Capabilities{
				Drop: []corev1.Capability{"ALL"},
				Add:  []corev1.Capability{"BPF", "PERFMON"},
			},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: "kernel-tracing", MountPath: "/sys/kernel/tracing"},
			{Name: "kernel-debug", MountPath: "/sys/kernel/debug"},
			{Name: "bpf-fs", MountPath: "/sys/fs/bpf"},
			{Name: "audit-buffer", MountPath: "/var/run/loom-audit"},
		},
	}
}

func auditSidecarVolumes() []corev1.Volume {
	hostPathDir := corev1.HostPathDirectory
	return []corev1.Volume{
		{Name: "kernel-tracing", VolumeSource: corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: "/sys/kernel/tracing", Type: &hostPathDir}}},
		{Name: "kernel-debug", VolumeSource: corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: "/sys/kernel/debug", Type: &hostPathDir}}},
		{Name: "bpf-fs", VolumeSource: corev1.VolumeSource{HostPath: &corev1.HostPathVolumeSource{Path: "/sys/fs/bpf", Type: &hostPathDir}}},
		{Name: "audit-buffer", VolumeSource: corev1.VolumeSource{EmptyDir: &corev1.EmptyDirVolumeSource{}}},
	}
}

const pollInterval = 500 * time.Millisecond

// pollUntilReady polls every 500ms until the pod reaches Running,
// Succeeded, Failed, or the context is done step 5.
func (p *Provisioner) pollUntilReady(ctx context.Context, weaverID ids.WeaverID, name string, req CreateRequest) (Weaver, error) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		pod, err := p.client.GetPod(ctx, p.cfg.Namespace, name)
		if err != nil {
			return Weaver{}, fmt.Errorf("poll weaver pod: %w", err)
		}
		switch pod.Status.Phase {
		case corev1.PodRunning, corev1.PodSucceeded:
			return podToWeaver(pod, weaverID, req.OwnerUserID, req.LifetimeHours), nil
		case corev1.PodFailed:
			return Weaver{}, fmt.Errorf("weaver pod failed: %s", pod.Status.Message)
		}

		select {
		case <-ctx.Done():
			return Weaver{}, fmt.Errorf("timed out waiting for weaver to become ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// labelLifetimeHours records the weaver's resolved lifetime on its pod so
// List, Get and Cleanup see the lifetime it was created with.
const labelLifetimeHours = "loom.dev/lifetime-hours"

func podToWeaver(pod *corev1.Pod, weaverID ids.WeaverID, owner ids.UserID, lifetimeHours float64) Weaver {
	if lifetimeHours == 0 {
		if v, err := strconv.ParseFloat(pod.Labels[labelLifetimeHours], 64); err == nil {
			lifetimeHours = v
		}
	}
	if lifetimeHours == 0 {
		lifetimeHours = DefaultLifetimeHours
	}
	return Weaver{
		ID:            weaverID,
		ContainerName: pod.Name,
		Status:        statusFromPhase(pod.Status.Phase),
		Image:         pod.Spec.Containers[0].Image,
		Tags:          pod.Annotations,
		CreatedAt:     pod.CreationTimestamp.Time,
		LifetimeHours: lifetimeHours,
		OwnerUserID:   owner,
	}
}

func statusFromPhase(phase corev1.PodPhase) Status {
	switch phase {
	case corev1.PodPending:
		return StatusPending
	case corev1.PodRunning:
		return StatusRunning
	case corev1.PodSucceeded:
		return StatusSucceeded
	case corev1.PodFailed:
		return StatusFailed
	default:
		return StatusTerminating
	}
}

// List enumerates every managed weaver, tolerating per-pod parse
// failures with a log-and-drop.
func (p *Provisioner) List(ctx context.Context) ([]Weaver, error) {
	podList, err := p.client.ListPods(ctx, p.cfg.Namespace, ManagedSelector)
	if err != nil {
		return nil, err
	}
	weavers := make([]Weaver, 0, len(podList.Items))
	for i := range podList.Items {
		pod := &podList.Items[i]
		weaverID, ok := pod.Labels["loom.dev/weaver-id"]
		if !ok {
			slog.Warn("managed pod missing weaver-id label, dropping", "pod", pod.Name)
			continue
		}
		weavers = append(weavers, podToWeaver(pod, ids.WeaverID(weaverID), ids.UserID(pod.Labels["loom.dev/owner"]), 0))
	}
	return weavers, nil
}

// Get returns the weaver with the given id, or WeaverNotFound.
func (p *Provisioner) Get(ctx context.Context, weaverID ids.WeaverID) (Weaver, error) {
	pod, err := p.client.GetPod(ctx, p.cfg.Namespace, weaverID.AsK8sName())
	if err != nil {
		return Weaver{}, apperr.NotFound(fmt.Sprintf("weaver %s", weaverID))
	}
	return podToWeaver(pod, weaverID, ids.UserID(pod.Labels["loom.dev/owner"]), 0), nil
}

const deleteGracePeriodSeconds = 5

// Delete removes a weaver with a 5s grace period.
func (p *Provisioner) Delete(ctx context.Context, weaverID ids.WeaverID) error {
	if err := p.client.DeletePod(ctx, p.cfg.Namespace, weaverID.AsK8sName(), deleteGracePeriodSeconds); err != nil {
		return fmt.Errorf("delete weaver pod: %w", err)
	}
	return nil
}

// Attach opens a bidirectional exec stream against a Running weaver's
// main container.
func (p *Provisioner) Attach(ctx context.Context, weaverID ids.WeaverID, stdin interface{ Read([]byte) (int, error) }, stdout, stderr interface {
	Write([]byte) (int, error)
}) error {
	w, err := p.Get(ctx, weaverID)
	if err != nil {
		return err
	}
	if w.Status != StatusRunning {
		return apperr.InvalidInput("weaver is not running")
	}
	return p.client.Exec(ctx, p.cfg.Namespace, weaverID.AsK8sName(), "weaver", []string{"/bin/sh"}, stdin, stdout, stderr, true)
}

// Logs streams the weaver's container log.
func (p *Provisioner) Logs(ctx context.Context, weaverID ids.WeaverID, tail *int64, timestamps bool) (interface{ Read([]byte) (int, error) }, error) {
	return p.client.GetPodLogs(ctx, p.cfg.Namespace, weaverID.AsK8sName(), "weaver", tail, timestamps)
}

// Cleanup enumerates managed weavers and deletes those past their
// lifetime, tolerating already-gone races.
func (p *Provisioner) Cleanup(ctx context.Context) (CleanupResult, error) {
	weavers, err := p.List(ctx)
	if err != nil {
		return CleanupResult{}, err
	}
	now := time.Now()
	result := CleanupResult{}
	for _, w := range weavers {
		if w.AgeHours(now) < w.LifetimeHours {
			continue
		}
		if err := p.Delete(ctx, w.ID); err != nil {
			slog.Warn("weaver cleanup delete failed, likely already gone", "weaver_id", w.ID, "error", err)
			continue
		}
		result.DeletedIDs = append(result.DeletedIDs, w.ID)
		result.Count++
	}
	return result, nil
}
