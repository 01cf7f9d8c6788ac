package display

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var ErrUnsupportedTerminal = errors.New("terminal does not support inline images")

const (
	escapeStart = "\x1b_G"
	escapeEnd   = "\x1b\\"
	chunkSize   = 4096
)

// KittyEncoder writes PNG data as kitty graphics escape sequences,
// transmitting and displaying in one action.
type KittyEncoder struct {
	out io.Writer
}

func NewKittyEncoder(out io.Writer) *KittyEncoder {
	return &KittyEncoder{out: out}
}

func (e *KittyEncoder) Encode(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	chunks := splitIntoChunks(base64.StdEncoding.EncodeToString(data), chunkSize)
	for i, chunk := range chunks {
		var params string
		more := 0
		if i < len(chunks)-1 {
			more = 1
		}
		switch {
		case i == 0 && len(chunks) == 1:
			params = "a=T,f=100,q=2"
		case i == 0:
			params = fmt.Sprintf("a=T,f=100,q=2,m=%d", more)
		default:
			params = fmt.Sprintf("m=%d", more)
		}

		if _, err := fmt.Fprintf(e.out, "%s%s;%s%s", escapeStart, params, chunk, escapeEnd); err != nil {
			return err
		}
	}
	return nil
}

func splitIntoChunks(s string, size int) []string {
	var chunks []string
	for len(s) > 0 {
		n := min(size, len(s))
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}
