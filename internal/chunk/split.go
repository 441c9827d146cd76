package chunk

import "fmt"

// Split cuts content into n chunks of near-equal size. Earlier chunks take
// the remainder; when n exceeds len(content), trailing chunks are empty.
func Split(content []byte, n int) ([][]byte, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d chunks", ErrTotalChunksRequired, n)
	}

	size := len(content) / n
	rem := len(content) % n
	out := make([][]byte, 0, n)
	off := 0

	for i := range n {
		end := off + size
		if i < rem {
			end++
		}

		out = append(out, content[off:end])
		off = end
	}

	return out, nil
}

// SplitBySize cuts content into chunks of at most size bytes. Empty
// content yields a single empty chunk.
func SplitBySize(content []byte, size int) ([][]byte, error) {
	if size < 1 {
		return nil, fmt.Errorf("chunk: chunk size %d < 1", size)
	}

	if len(content) == 0 {
		return [][]byte{{}}, nil
	}

	out := make([][]byte, 0, (len(content)+size-1)/size)
	for off := 0; off < len(content); off += size {
		out = append(out, content[off:min(off+size, len(content))])
	}

	return out, nil
}
