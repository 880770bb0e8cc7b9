package keypath

import "fmt"

// ListUpdate assigns value at obj[indexes[0]][indexes[1]]...[indexes[n-1]].
//
// obj and every intermediate node must be sequences. Indexes may be negative and count
// from the end. An empty index list is a no-op. The sequence is mutated in place.
func ListUpdate(obj any, indexes []int, value any) error {
	if len(indexes) == 0 {
		return nil
	}

	current, ok := obj.([]any)
	if !ok {
		return &TypeMismatchError{Expected: "sequence", Got: kindOf(obj), Dump: dump(obj)}
	}

	trail := ""
	for level, index := range indexes[:len(indexes)-1] {
		pos, ok := resolveIndex(index, len(current))
		if !ok {
			return &IndexOutOfRangeError{Keypath: trail, Index: index, Length: len(current), Dump: dump(current)}
		}
		trail += fmt.Sprintf("[%d]", index)

		next, ok := current[pos].([]any)
		if !ok {
			return &TypeMismatchError{
				Keypath:  trail,
				Level:    level + 1,
				Expected: "sequence",
				Got:      kindOf(current[pos]),
				Dump:     dump(current[pos]),
			}
		}
		current = next
	}

	last := indexes[len(indexes)-1]
	pos, ok := resolveIndex(last, len(current))
	if !ok {
		return &IndexOutOfRangeError{Keypath: trail, Index: last, Length: len(current), Dump: dump(current)}
	}
	current[pos] = value
	return nil
}
