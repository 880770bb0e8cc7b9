package kube

import (
	"context"
	"fmt"
	"time"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"ccptests/pkg/logging"
	"ccptests/pkg/poll"
)

// WaitJobComplete waits until the job has the Complete condition. A Failed condition
// ends the wait early.
func (c *Cluster) WaitJobComplete(ctx context.Context, ns, name string, timeout time.Duration) error {
	logging.Info("Kube", "Waiting up to %v for job %s/%s to complete", timeout, ns, name)

	return poll.Until(ctx, func(ctx context.Context) (bool, error) {
		job, err := c.clientset.BatchV1().Jobs(ns).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		for _, cond := range job.Status.Conditions {
			if cond.Status != corev1.ConditionTrue {
				continue
			}
			switch cond.Type {
			case batchv1.JobComplete:
				return true, nil
			case batchv1.JobFailed:
				return false, poll.Permanent(fmt.Errorf("job %s/%s failed: %s", ns, name, cond.Message))
			}
		}
		return false, nil
	}, timeout, c.pollInterval, fmt.Sprintf("job %s/%s did not complete", ns, name))
}

// WaitDeploymentReady waits until the deployment has rolled out its current generation
// and all desired replicas are ready.
func (c *Cluster) WaitDeploymentReady(ctx context.Context, ns, name string, timeout time.Duration) error {
	logging.Info("Kube", "Waiting up to %v for deployment %s/%s to be ready", timeout, ns, name)

	return poll.Until(ctx, func(ctx context.Context) (bool, error) {
		d, err := c.clientset.AppsV1().Deployments(ns).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return false, err
		}
		desired := int32(1)
		if d.Spec.Replicas != nil {
			desired = *d.Spec.Replicas
		}
		st := d.Status
		return st.ObservedGeneration >= d.Generation &&
			st.UpdatedReplicas == desired &&
			st.ReadyReplicas == desired, nil
	}, timeout, c.pollInterval, fmt.Sprintf("deployment %s/%s is not ready", ns, name))
}

// EnsureNamespace creates the namespace unless it exists.
func (c *Cluster) EnsureNamespace(ctx context.Context, name string) error {
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
	_, err := c.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	logging.Info("Kube", "Created namespace %s", name)
	return nil
}

// DeleteNamespace deletes the namespace. A missing namespace is not an error.
func (c *Cluster) DeleteNamespace(ctx context.Context, name string) error {
	err := c.clientset.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{})
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete namespace %s: %w", name, err)
	}
	logging.Info("Kube", "Deleted namespace %s", name)
	return nil
}
