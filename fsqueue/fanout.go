package fsqueue

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
)

// fanout computes the sub-path for a request ordinal so that no directory
// inside a batch ever holds more than maxPerFolder entries. The ordinal is
// written in base maxPerFolder, one zero-padded digit group per level; the
// final group becomes the archive file name prefix and the preceding groups
// become nested directory names.
type fanout struct {
	perFolder int
	depth     int
	width     int
}

func newFanout(batchSize, maxPerFolder int) fanout {
	if maxPerFolder < 2 {
		maxPerFolder = 2
	}
	if batchSize < 1 {
		batchSize = 1
	}
	depth := 1
	capacity := maxPerFolder
	for capacity < batchSize {
		depth++
		if capacity > math.MaxInt/maxPerFolder {
			break
		}
		capacity *= maxPerFolder
	}
	return fanout{
		perFolder: maxPerFolder,
		depth:     depth,
		width:     len(strconv.Itoa(maxPerFolder - 1)),
	}
}

// relPath returns the directory path (relative to the batch directory, empty
// for depth 1) and the file name prefix for the given ordinal.
func (f fanout) relPath(ordinal int) (string, string) {
	if ordinal < 0 {
		ordinal = 0
	}
	groups := make([]string, f.depth)
	v := ordinal
	for i := f.depth - 1; i >= 0; i-- {
		groups[i] = fmt.Sprintf("%0*d", f.width, v%f.perFolder)
		v /= f.perFolder
	}
	return filepath.Join(groups[:f.depth-1]...), groups[f.depth-1]
}
