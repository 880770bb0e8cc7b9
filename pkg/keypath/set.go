package keypath

import "fmt"

// Option configures SetValue.
type Option func(*options)

type options struct {
	newOnMissing bool
}

// WithNewOnMissing controls whether missing mapping keys are created (the default) or
// reported as *MissingKeyError.
func WithNewOnMissing(create bool) Option {
	return func(o *options) {
		o.newOnMissing = create
	}
}

// Set assigns value at path, creating missing keys.
func Set(source map[string]any, path string, value any) error {
	return SetValue(source, path, value)
}

// SetValue assigns value at path inside source. The document is mutated in place.
//
// All segments but the last are walked first: a missing key is created with
// Skeleton(indexes) (or reported, see WithNewOnMissing), then each index of the segment
// descends one sequence level and the node reached must be a mapping. The last segment
// is assigned directly when it has no indexes and through ListUpdate otherwise.
func SetValue(source map[string]any, path string, value any, opts ...Option) error {
	o := options{newOnMissing: true}
	for _, opt := range opts {
		opt(&o)
	}

	if source == nil {
		return &TypeMismatchError{Expected: "mapping", Got: kindOf(nil)}
	}

	raw := SplitPath(path)
	lastPath := raw[len(raw)-1]

	data := source
	var walked []string
	for _, s := range raw[:len(raw)-1] {
		seg := ParseSegment(s)
		if _, exists := data[seg.Key]; !exists {
			if !o.newOnMissing {
				return &MissingKeyError{Key: seg.Key, Keypath: joinWalked(walked)}
			}
			data[seg.Key] = Skeleton(seg.Indexes)
		}

		step := seg.Key
		node := data[seg.Key]
		for level, index := range seg.Indexes {
			seq, ok := node.([]any)
			if !ok {
				return &TypeMismatchError{
					Keypath:  joinWalked(append(walked, step)),
					Level:    level,
					Expected: "sequence",
					Got:      kindOf(node),
					Dump:     dump(node),
				}
			}
			pos, ok := resolveIndex(index, len(seq))
			if !ok {
				return &IndexOutOfRangeError{
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

		next, ok := node.(map[string]any)
		if !ok {
			return &TypeMismatchError{
				Keypath:  joinWalked(walked),
				Expected: "mapping",
				Got:      kindOf(node),
				Dump:     dump(node),
			}
		}
		data = next
	}

	seg := ParseSegment(lastPath)
	keypath := joinWalked(append(walked, seg.Key))

	existing, exists := data[seg.Key]
	if !exists {
		if !o.newOnMissing {
			return &MissingKeyError{Key: seg.Key, Keypath: joinWalked(walked)}
		}
		existing = Skeleton(seg.Indexes)
		data[seg.Key] = existing
	}

	if len(seg.Indexes) == 0 {
		data[seg.Key] = value
		return nil
	}

	if _, ok := existing.([]any); !ok {
		return &TypeMismatchError{
			Keypath:  keypath,
			Expected: "sequence",
			Got:      kindOf(existing),
			Dump:     dump(existing),
		}
	}

	if err := ListUpdate(existing, seg.Indexes, value); err != nil {
		return withContext(err, keypath, existing)
	}
	return nil
}
