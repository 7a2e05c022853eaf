// Package batch splits ordered work into bounded chunks.
package batch

// DefaultSize is the chunk size used when a caller passes a non-positive size.
const DefaultSize = 100

// Partition splits items into contiguous chunks of at most size elements.
// Order is preserved and only the last chunk may be shorter. Chunks share the
// backing array of items with capacity capped, so appending to one chunk never
// overwrites the next.
func Partition[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		size = DefaultSize
	}

	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end:end])
	}
	return chunks
}
