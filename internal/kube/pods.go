package kube

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"ccptests/pkg/logging"
	"ccptests/pkg/poll"
)

// Pods lists the pods of ns matching the label selector, sorted by name.
func (c *Cluster) Pods(ctx context.Context, ns, selector string) ([]corev1.Pod, error) {
	list, err := c.clientset.CoreV1().Pods(ns).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", ns, err)
	}
	pods := list.Items
	sort.Slice(pods, func(i, j int) bool { return pods[i].Name < pods[j].Name })
	return pods, nil
}

// PodPhase returns the current phase of a pod.
func (c *Cluster) PodPhase(ctx context.Context, ns, name string) (corev1.PodPhase, error) {
	pod, err := c.clientset.CoreV1().Pods(ns).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", err
	}
	return pod.Status.Phase, nil
}

// WaitPodPhase waits until the pod reaches phase.
func (c *Cluster) WaitPodPhase(ctx context.Context, ns, name string, phase corev1.PodPhase, timeout time.Duration) error {
	logging.Info("Kube", "Waiting up to %v for pod %s/%s to be %s", timeout, ns, name, phase)

	var current corev1.PodPhase
	err := poll.Until(ctx, func(ctx context.Context) (bool, error) {
		p, err := c.PodPhase(ctx, ns, name)
		if err != nil {
			return false, err
		}
		current = p
		if phase != corev1.PodFailed && p == corev1.PodFailed {
			return false, poll.Permanent(fmt.Errorf("pod %s/%s failed", ns, name))
		}
		return p == phase, nil
	}, timeout, c.pollInterval, "waiting for pod phase")
	if err != nil {
		return fmt.Errorf("pod %s/%s is %q, not %s: %w", ns, name, current, phase, err)
	}
	return nil
}

// WaitPodsPhase waits until at least one pod matches selector and all matching pods
// are in phase. On timeout the error lists the pods that were not.
func (c *Cluster) WaitPodsPhase(ctx context.Context, ns, selector string, phase corev1.PodPhase, timeout time.Duration) error {
	logging.Info("Kube", "Waiting up to %v for pods %q in %s to be %s", timeout, selector, ns, phase)

	var (
		badPods []corev1.Pod
		total   int
	)
	err := poll.Until(ctx, func(ctx context.Context) (bool, error) {
		pods, err := c.Pods(ctx, ns, selector)
		if err != nil {
			return false, err
		}
		total = len(pods)
		badPods = badPods[:0]
		for _, pod := range pods {
			if pod.Status.Phase != phase {
				badPods = append(badPods, pod)
			}
		}
		return total > 0 && len(badPods) == 0, nil
	}, timeout, c.pollInterval, "waiting for pods")
	if err != nil {
		return fmt.Errorf("%s%w", badPodsReport(badPods, total, ns, string(phase), timeout), err)
	}
	return nil
}

// badPodsReport formats the pods that did not reach the desired state.
func badPodsReport(badPods []corev1.Pod, total int, ns, desiredState string, timeout time.Duration) string {
	report := fmt.Sprintf("%d / %d pods in namespace %q are NOT in %s state in %v\n", len(badPods), total, ns, desiredState, timeout)
	if total == 0 {
		return report
	}
	if len(badPods) > 10 {
		return report + "There are too many bad pods. Please check log for details.\n"
	}

	buf := bytes.NewBuffer(nil)
	w := tabwriter.NewWriter(buf, 0, 0, 1, ' ', 0)
	fmt.Fprintln(w, "POD\tNODE\tPHASE\tGRACE\tCONDITIONS")
	for _, pod := range badPods {
		grace := ""
		if pod.DeletionGracePeriodSeconds != nil {
			grace = fmt.Sprintf("%ds", *pod.DeletionGracePeriodSeconds)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%+v\n",
			pod.Name, pod.Spec.NodeName, pod.Status.Phase, grace, pod.Status.Conditions)
	}
	_ = w.Flush()
	return report + buf.String()
}
