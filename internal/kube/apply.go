package kube

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/yaml"

	"ccptests/pkg/logging"
)

// clusterScopedKinds never get the default namespace.
var clusterScopedKinds = map[string]bool{
	"Namespace":                true,
	"Node":                     true,
	"PersistentVolume":         true,
	"StorageClass":             true,
	"ClusterRole":              true,
	"ClusterRoleBinding":       true,
	"CustomResourceDefinition": true,
	"PriorityClass":            true,
}

// DecodeManifests splits a multi-document YAML or JSON manifest into objects. Empty
// documents are skipped.
func DecodeManifests(manifest []byte) ([]*unstructured.Unstructured, error) {
	reader := utilyaml.NewYAMLReader(bufio.NewReader(bytes.NewReader(manifest)))

	var objs []*unstructured.Unstructured
	for i := 0; ; i++ {
		doc, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read document %d: %w", i, err)
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}

		data, err := yaml.YAMLToJSON(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d is not valid YAML: %w", i, err)
		}
		if string(data) == "null" {
			continue
		}

		obj := &unstructured.Unstructured{}
		if err := obj.UnmarshalJSON(data); err != nil {
			return nil, fmt.Errorf("document %d is not a Kubernetes object: %w", i, err)
		}
		objs = append(objs, obj)
	}
	return objs, nil
}

// Apply creates every object of the manifest, updating those that already exist.
// Namespaced objects without a namespace are put in namespace.
func (c *Cluster) Apply(ctx context.Context, namespace string, manifest []byte) ([]*unstructured.Unstructured, error) {
	objs, err := DecodeManifests(manifest)
	if err != nil {
		return nil, err
	}

	for _, obj := range objs {
		if obj.GetNamespace() == "" && namespace != "" && !clusterScopedKinds[obj.GetKind()] {
			obj.SetNamespace(namespace)
		}
		if err := c.createOrUpdate(ctx, obj); err != nil {
			return nil, err
		}
	}
	return objs, nil
}

func (c *Cluster) createOrUpdate(ctx context.Context, obj *unstructured.Unstructured) error {
	ref := objectRef(obj)

	existing := &unstructured.Unstructured{}
	existing.SetGroupVersionKind(obj.GroupVersionKind())
	err := c.client.Get(ctx, client.ObjectKeyFromObject(obj), existing)
	switch {
	case apierrors.IsNotFound(err):
		if err := c.client.Create(ctx, obj); err != nil {
			return fmt.Errorf("failed to create %s: %w", ref, err)
		}
		logging.Info("Kube", "Created %s", ref)
		return nil
	case err != nil:
		return fmt.Errorf("failed to get %s: %w", ref, err)
	}

	obj.SetResourceVersion(existing.GetResourceVersion())
	if err := c.client.Update(ctx, obj); err != nil {
		return fmt.Errorf("failed to update %s: %w", ref, err)
	}
	logging.Info("Kube", "Updated %s", ref)
	return nil
}

func objectRef(obj *unstructured.Unstructured) string {
	parts := []string{strings.ToLower(obj.GetKind())}
	if obj.GetNamespace() != "" {
		parts = append(parts, obj.GetNamespace())
	}
	parts = append(parts, obj.GetName())
	return strings.Join(parts, "/")
}
