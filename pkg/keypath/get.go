package keypath

import (
	"fmt"
	"strings"
)

// GetValue returns the node at path. It never modifies the document. An empty path
// returns source itself.
func GetValue(source any, path string) (any, error) {
	if strings.TrimLeft(path, ".") == "" {
		return source, nil
	}

	node := source
	var walked []string
	for _, seg := range Parse(path) {
		mapping, ok := node.(map[string]any)
		if !ok {
			return nil, &TypeMismatchError{
				Keypath:  joinWalked(walked),
				Expected: "mapping",
				Got:      kindOf(node),
				Dump:     dump(node),
			}
		}
		value, exists := mapping[seg.Key]
		if !exists {
			return nil, &MissingKeyError{Key: seg.Key, Keypath: joinWalked(walked)}
		}

		step := seg.Key
		node = value
		for level, index := range seg.Indexes {
			seq, ok := node.([]any)
			if !ok {
				return nil, &TypeMismatchError{
					Keypath:  joinWalked(append(walked, step)),
					Level:    level,
					Expected: "sequence",
					Got:      kindOf(node),
					Dump:     dump(node),
				}
			}
			pos, ok := resolveIndex(index, len(seq))
			if !ok {
				return nil, &IndexOutOfRangeError{
					Keypath: joinWalked(append(walked, step)),
					Index:   index,
					Length:  len(seq),
					Dump:    dump(seq),
				}
			}
			node = seq[pos]
			step += fmt.Sprintf("[%d]", index)
		}
		walked = append(walked, step)
	}
	return node, nil
}

// Has reports whether path resolves in source.
func Has(source any, path string) bool {
	_, err := GetValue(source, path)
	return err == nil
}
