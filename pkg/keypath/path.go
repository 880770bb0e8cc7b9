package keypath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var indexPattern = regexp.MustCompile(`\[(-?\d+)\]`)

// Segment is one dot-delimited component of a keypath.
type Segment struct {
	Key string
	// Indexes are applied left to right, each descending one level of sequence nesting
	// under Key.
	Indexes []int
}

// String renders the segment back in keypath syntax.
func (s Segment) String() string {
	var b strings.Builder
	b.WriteString(s.Key)
	for _, index := range s.Indexes {
		fmt.Fprintf(&b, "[%d]", index)
	}
	return b.String()
}

// ParseSegment splits a segment such as "groups[-1][2]" into its key and indexes.
// Bracket groups that do not hold an integer are left in the key untouched.
func ParseSegment(segment string) Segment {
	var (
		key     strings.Builder
		indexes = []int{}
		last    int
	)
	for _, loc := range indexPattern.FindAllStringSubmatchIndex(segment, -1) {
		index, err := strconv.Atoi(segment[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		key.WriteString(segment[last:loc[0]])
		indexes = append(indexes, index)
		last = loc[1]
	}
	key.WriteString(segment[last:])

	return Segment{Key: key.String(), Indexes: indexes}
}

// SplitPath strips leading dots from path and splits it into raw segments.
func SplitPath(path string) []string {
	return strings.Split(strings.TrimLeft(path, "."), ".")
}

// Parse splits and parses every segment of path.
func Parse(path string) []Segment {
	raw := SplitPath(path)
	segments := make([]Segment, 0, len(raw))
	for _, s := range raw {
		segments = append(segments, ParseSegment(s))
	}
	return segments
}

func joinWalked(walked []string) string {
	return strings.Join(walked, ".")
}

// resolveIndex maps a possibly negative index onto a position in a sequence of the given
// length.
func resolveIndex(index, length int) (int, bool) {
	pos := index
	if pos < 0 {
		pos += length
	}
	if pos < 0 || pos >= length {
		return 0, false
	}
	return pos, true
}
