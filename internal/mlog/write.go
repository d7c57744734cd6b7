package mlog

import (
	"io"
	"strings"

	"github.com/dogmatiq/iago/must"
)

// String returns a log line as a string.
func String(
	ids []IconWithLabel,
	icons []Icon,
	text ...string,
) string {
	var w strings.Builder
	writeLine(&w, ids, icons, text)
	return w.String()
}

// Write writes a log line to w.
func Write(
	w io.Writer,
	ids []IconWithLabel,
	icons []Icon,
	text ...string,
) (n int, err error) {
	defer must.Recover(&err)
	return writeLine(w, ids, icons, text), nil
}

// writeLine renders the IDs, then the icons, then each non-empty text
// element separated by SeparatorIcon. It panics via the must package on write
// failure.
func writeLine(
	w io.Writer,
	ids []IconWithLabel,
	icons []Icon,
	text []string,
) (n int) {
	for _, id := range ids {
		n += must.WriteTo(w, id)
		n += must.Write(w, space2)
	}

	for _, i := range icons {
		n += must.WriteTo(w, i)
		n += must.Write(w, space1)
	}

	first := true
	for _, t := range text {
		if t == "" {
			continue
		}

		n += must.Write(w, space1)

		if !first {
			n += must.WriteTo(w, SeparatorIcon)
			n += must.Write(w, space1)
		}

		n += must.WriteString(w, t)
		first = false
	}

	return n
}

var (
	space1 = []byte{' '}
	space2 = []byte{' ', ' '}
)
