package journal

import (
	"io"
	"os"
)

// ScanFile reads every well-formed entry from the start of f, in
// order. It returns the decoded entries, the byte offset immediately
// following the last fully-valid entry (the append point / tail
// offset), and a bool indicating whether trailing bytes were found
// that did not form a complete entry.
//
// ScanFile stops at the first entry that fails to decode rather than
// erroring the whole scan: everything before that point is known-good
// and durable; what follows is, by definition, not yet committed.
func ScanFile(f *os.File) (entries []Entry, tailOffset int64, torn bool, err error) {
	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return nil, 0, false, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, false, err
	}

	var offset int64
	for int(offset) < len(data) {
		remaining := data[offset:]
		if len(remaining) < HeaderSize {
			torn = len(remaining) > 0
			break
		}
		e, n, decErr := decode(remaining)
		if decErr != nil {
			torn = true
			break
		}
		entries = append(entries, e)
		offset += int64(n)
	}

	return entries, offset, torn, nil
}
