package mutex

import (
	"sort"

	"github.com/pixperk/objmutex/pkg/types"
)

// where a ticket stands in the queue
type Position struct {
	Index int
	Head  bool
	// tickets in front, oldest first
	Ahead []types.ObjectInfo
}

// sorts tickets oldest first, ties broken by key
// returns a copy, the input is left alone
func Order(live []types.ObjectInfo) []types.ObjectInfo {
	ordered := make([]types.ObjectInfo, len(live))
	copy(ordered, live)

	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.LastModified.Equal(b.LastModified) {
			return a.LastModified.Before(b.LastModified)
		}
		return a.Key < b.Key
	})
	return ordered
}

// finds ownKey in an ordered queue; false if it is not there
func Locate(ordered []types.ObjectInfo, ownKey string) (Position, bool) {
	for i, o := range ordered {
		if o.Key == ownKey {
			return Position{Index: i, Head: i == 0, Ahead: ordered[:i:i]}, true
		}
	}
	return Position{}, false
}
