package config

import (
	"fmt"
	"os"
	"path/filepath"

	"ccptests/pkg/keypath"
	"ccptests/pkg/logging"
)

// GetFromFile returns the value at kp inside the YAML file at path.
func GetFromFile(path, kp string) (any, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return keypath.GetValue(doc, kp)
}

// SetInFile assigns value at kp inside the YAML file at path and writes the file back.
// A missing file starts as an empty document. With create false a missing key fails
// with keypath.ErrMissingKey and the file is left untouched.
func SetInFile(path, kp string, value any, create bool) error {
	doc, err := readDocument(path)
	if os.IsNotExist(err) && create {
		doc, err = map[string]any{}, nil
	}
	if err != nil {
		return err
	}

	if err := keypath.SetValue(doc, kp, value, keypath.WithNewOnMissing(create)); err != nil {
		return err
	}

	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logging.Debug("Config", "Set %s in %s", kp, path)
	return nil
}

func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// writeFileAtomic replaces path with data through a temporary file in the same
// directory, so watchers never observe a partial document.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
