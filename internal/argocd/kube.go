package argocd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/numberone-ai/previewctl/internal/models"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/tools/clientcmd"
)

// ApplicationGVR is the Argo CD Application resource
var ApplicationGVR = schema.GroupVersionResource{
	Group:    "argoproj.io",
	Version:  "v1alpha1",
	Resource: "applications",
}

// KubeClient reads Application resources through the Kubernetes API
type KubeClient struct {
	Namespace string

	dyn    dynamic.Interface
	logger *slog.Logger
	now    func() time.Time
}

// NewKubeClient wraps an existing dynamic client
func NewKubeClient(dyn dynamic.Interface, namespace string, logger *slog.Logger) *KubeClient {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if namespace == "" {
		namespace = "argocd"
	}
	return &KubeClient{Namespace: namespace, dyn: dyn, logger: logger, now: time.Now}
}

// NewKubeClientFromConfig builds a dynamic client from a kubeconfig file and
// context; empty values use the default loading rules
func NewKubeClientFromConfig(kubeconfig, kubeContext, namespace string, logger *slog.Logger) (*KubeClient, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfig != "" {
		rules.ExplicitPath = kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: kubeContext}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("build kubernetes config: %w", err)
	}
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}
	return NewKubeClient(dyn, namespace, logger), nil
}

// namespaceGVR is the core Namespace resource
var namespaceGVR = schema.GroupVersionResource{Version: "v1", Resource: "namespaces"}

// instanceAnnotation is the tracking annotation Argo CD may put on resources
const instanceAnnotation = "app.kubernetes.io/instance"

func (k *KubeClient) apps() dynamic.ResourceInterface {
	return k.dyn.Resource(ApplicationGVR).Namespace(k.Namespace)
}

// GetStatus reads status.health and status.sync of the Application
func (k *KubeClient) GetStatus(ctx context.Context, app string) (models.DeploymentStatus, error) {
	obj, err := k.apps().Get(ctx, app, metav1.GetOptions{})
	if err != nil {
		return models.DeploymentStatus{}, k.classify(app, err)
	}
	return k.statusOf(app, obj), nil
}

// AppForNamespace reads the application from the namespace annotations,
// then falls back to the Application whose spec.destination.namespace
// matches
func (k *KubeClient) AppForNamespace(ctx context.Context, namespace string) (string, error) {
	ns, err := k.dyn.Resource(namespaceGVR).Get(ctx, namespace, metav1.GetOptions{})
	switch {
	case err == nil:
		if app := appFromAnnotations(ns.GetAnnotations()); app != "" {
			return app, nil
		}
	case apierrors.IsNotFound(err), apierrors.IsForbidden(err):
		k.logger.Debug("namespace not readable, searching applications", "namespace", namespace, "error", err)
	default:
		return "", fmt.Errorf("get namespace %s: %w", namespace, err)
	}

	list, err := k.apps().List(ctx, metav1.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("list applications: %w", err)
	}
	for _, item := range list.Items {
		dest, _, _ := unstructured.NestedString(item.Object, "spec", "destination", "namespace")
		if dest == namespace {
			return item.GetName(), nil
		}
	}
	return "", nil
}

// appFromAnnotations picks an argocd application annotation, or the
// instance annotation
func appFromAnnotations(annotations map[string]string) string {
	keys := make([]string, 0, len(annotations))
	for key := range annotations {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		lower := strings.ToLower(key)
		if strings.Contains(lower, "argocd") && strings.Contains(lower, "app") {
			return annotations[key]
		}
	}
	return annotations[instanceAnnotation]
}

func (k *KubeClient) classify(app string, err error) error {
	// Forbidden mirrors the CLI: RBAC hides applications we may not see
	if apierrors.IsNotFound(err) || apierrors.IsForbidden(err) {
		return fmt.Errorf("%s: %w", app, ErrAppNotFound)
	}
	return fmt.Errorf("get application %s: %w", app, err)
}

func (k *KubeClient) statusOf(app string, obj *unstructured.Unstructured) models.DeploymentStatus {
	health, _, _ := unstructured.NestedString(obj.Object, "status", "health", "status")
	sync, _, _ := unstructured.NestedString(obj.Object, "status", "sync", "status")
	revision, _, _ := unstructured.NestedString(obj.Object, "status", "sync", "revision")
	message, _, _ := unstructured.NestedString(obj.Object, "status", "health", "message")
	if message == "" {
		message, _, _ = unstructured.NestedString(obj.Object, "status", "operationState", "message")
	}
	return models.DeploymentStatus{
		App:        app,
		Health:     models.ParseHealth(health),
		Sync:       models.ParseSync(sync),
		ObservedAt: k.now(),
		Revision:   revision,
		Message:    message,
	}
}

// WaitForStatus watches the Application until it is healthy and synced,
// degraded or missing, or timeout elapses. On timeout the last observation
// is returned without error.
func (k *KubeClient) WaitForStatus(ctx context.Context, app string, timeout time.Duration) (models.DeploymentStatus, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	obj, err := k.apps().Get(waitCtx, app, metav1.GetOptions{})
	if err != nil {
		return models.DeploymentStatus{}, k.classify(app, err)
	}
	last := k.statusOf(app, obj)
	if last.Ready() || last.Failed() {
		return last, nil
	}
	resourceVersion := obj.GetResourceVersion()

	for {
		w, err := k.apps().Watch(waitCtx, metav1.ListOptions{
			FieldSelector:   fields.OneTermEqualSelector("metadata.name", app).String(),
			ResourceVersion: resourceVersion,
		})
		if err != nil {
			if waitCtx.Err() != nil {
				return k.timedOut(ctx, last)
			}
			return last, fmt.Errorf("watch application %s: %w", app, err)
		}

		status, done, rv, err := k.drain(waitCtx, app, w, last)
		w.Stop()
		last = status
		if err != nil {
			return last, err
		}
		if rv != "" {
			resourceVersion = rv
		}
		if done {
			return last, nil
		}
		if waitCtx.Err() != nil {
			return k.timedOut(ctx, last)
		}
		k.logger.Debug("application watch closed, re-watching", "app", app, "resource_version", resourceVersion)
	}
}

// drain consumes watch events until a terminal status, context end, an
// error event or a closed channel. The returned resource version resumes
// the next watch.
func (k *KubeClient) drain(ctx context.Context, app string, w watch.Interface, last models.DeploymentStatus) (models.DeploymentStatus, bool, string, error) {
	var rv string
	for {
		select {
		case <-ctx.Done():
			return last, false, rv, nil
		case ev, ok := <-w.ResultChan():
			if !ok {
				return last, false, rv, nil
			}
			if ev.Type == watch.Error {
				// The watch position is lost (usually 410 Gone); read the
				// current object and resume from its resource version
				k.logger.Debug("application watch error, resyncing", "app", app, "error", apierrors.FromObject(ev.Object))
				return k.resync(ctx, app, last)
			}
			obj, isObj := ev.Object.(*unstructured.Unstructured)
			if !isObj || obj.GetName() != app {
				continue
			}
			rv = obj.GetResourceVersion()
			switch ev.Type {
			case watch.Deleted:
				return k.deleted(app), true, rv, nil
			case watch.Added, watch.Modified:
				last = k.statusOf(app, obj)
				k.logger.Debug("application event", "app", app, "health", last.Health, "sync", last.Sync)
				if last.Ready() || last.Failed() {
					return last, true, rv, nil
				}
			}
		}
	}
}

func (k *KubeClient) resync(ctx context.Context, app string, last models.DeploymentStatus) (models.DeploymentStatus, bool, string, error) {
	obj, err := k.apps().Get(ctx, app, metav1.GetOptions{})
	switch {
	case apierrors.IsNotFound(err):
		return k.deleted(app), true, "", nil
	case err != nil && ctx.Err() != nil:
		return last, false, "", nil
	case err != nil:
		return last, false, "", fmt.Errorf("resync application %s: %w", app, err)
	}
	status := k.statusOf(app, obj)
	return status, status.Ready() || status.Failed(), obj.GetResourceVersion(), nil
}

func (k *KubeClient) deleted(app string) models.DeploymentStatus {
	return models.DeploymentStatus{App: app, Health: models.HealthMissing, Sync: models.SyncUnknown, ObservedAt: k.now(), Message: "application deleted"}
}

// timedOut distinguishes our own deadline from the caller cancelling
func (k *KubeClient) timedOut(parent context.Context, last models.DeploymentStatus) (models.DeploymentStatus, error) {
	if err := parent.Err(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return last, err
	}
	return last, nil
}
