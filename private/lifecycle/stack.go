// Copyright (C) 2025 Storj Labs, Inc.
// See LICENSE for copying information.

package lifecycle

import (
	"bytes"
)

// condenseStack shortens a full goroutine dump to one line per frame:
// the goroutine header without state, then function:line entries.
// If parsing fails the original dump is returned, too big beats nothing.
func condenseStack(buf []byte) (out []byte) {
	defer func() {
		if recover() != nil {
			out = buf
		}
	}()

	skipNext := false
	for _, line := range bytes.Split(buf, []byte("\n")) {
		if skipNext {
			skipNext = false
			continue
		}

		switch {
		case len(line) == 0:
			out = append(out, '\n')

		case bytes.HasPrefix(line, []byte("goroutine ")):
			const gi = len("goroutine ")
			line = line[:gi+bytes.IndexByte(line[gi:], ' ')]
			out = append(out, line...)
			out = append(out, '\n')

		case line[0] == '\t':
			// file path line: keep only the line number and offset.
			line = line[bytes.LastIndexByte(line, ':')+1:]
			if n := bytes.IndexByte(line, ' '); n >= 0 {
				line = line[:n]
			}
			out = append(out, line...)
			out = append(out, '\n')

		case bytes.HasPrefix(line, []byte("created by")):
			skipNext = true

		default:
			// function call line: drop the argument list.
			line = line[:bytes.LastIndexByte(line, '(')]
			out = append(out, '\t')
			out = append(out, line...)
			out = append(out, ':')
		}
	}

	return out
}
