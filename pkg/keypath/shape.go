package keypath

import (
	"fmt"
	"math"
)

// Skeleton builds the container a missing key needs so that indexes address an empty
// mapping inside it.
//
// An empty index list yields an empty mapping. Otherwise the skeleton is built from the
// deepest index outwards: a non-negative index x produces a sequence of x nils followed by
// the inner value, a negative index x produces the inner value followed by |x|-1 nils.
//
//	Skeleton(nil)            // {}
//	Skeleton([]int{2})       // [nil, nil, {}]
//	Skeleton([]int{1, 3})    // [nil, [nil, nil, nil, {}]]
//	Skeleton([]int{-1, 1, -2}) // [[nil, [{}, nil]]]
func Skeleton(indexes []int) any {
	var obj any = map[string]any{}
	for i := len(indexes) - 1; i >= 0; i-- {
		x := indexes[i]
		var level []any
		if x >= 0 {
			level = make([]any, x+1)
			level[x] = obj
		} else {
			level = make([]any, -x)
			level[0] = obj
		}
		obj = level
	}
	return obj
}

// SkeletonOf is Skeleton for index lists that arrive untyped, e.g. decoded from a
// scenario file. It accepts []int or []any holding integral numbers.
func SkeletonOf(indexes any) (any, error) {
	switch v := indexes.(type) {
	case []int:
		return Skeleton(v), nil
	case []any:
		ints := make([]int, 0, len(v))
		for i, item := range v {
			n, ok := toInt(item)
			if !ok {
				return nil, &TypeMismatchError{
					Keypath:  fmt.Sprintf("[%d]", i),
					Expected: "integer index",
					Got:      kindOf(item),
					Dump:     dump(v),
				}
			}
			ints = append(ints, n)
		}
		return Skeleton(ints), nil
	default:
		return nil, &TypeMismatchError{
			Expected: "sequence of indexes",
			Got:      kindOf(indexes),
			Dump:     dump(indexes),
		}
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		if n > math.MaxInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
