package display

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestKittyEncoder_Encode_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewKittyEncoder(&buf).Encode(nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected empty output, got %q", buf.String())
	}
}

func TestKittyEncoder_Encode(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		wantChunks int
	}{
		{name: "single chunk", size: 15, wantChunks: 1},
		{name: "exactly one chunk", size: chunkSize * 3 / 4, wantChunks: 1},
		{name: "two chunks", size: chunkSize*3/4 + 1, wantChunks: 2},
		{name: "many chunks", size: 20000, wantChunks: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([]byte, tt.size)
			for i := range data {
				data[i] = byte(i % 251)
			}

			var buf bytes.Buffer
			if err := NewKittyEncoder(&buf).Encode(data); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			output := buf.String()

			if got := strings.Count(output, escapeStart); got != tt.wantChunks {
				t.Fatalf("expected %d chunks, got %d", tt.wantChunks, got)
			}
			if !strings.HasPrefix(output, escapeStart+"a=T,f=100,q=2") {
				t.Errorf("first chunk should transmit a PNG quietly, got %q", output[:20])
			}
			if !strings.HasSuffix(output, escapeEnd) {
				t.Error("output should end with escape terminator")
			}

			if tt.wantChunks == 1 {
				if strings.Contains(output, "m=") {
					t.Error("single chunk should not carry a continuation flag")
				}
			} else {
				if strings.Count(output, "m=1") != tt.wantChunks-1 {
					t.Errorf("expected %d continuation flags", tt.wantChunks-1)
				}
				if strings.Count(output, "m=0") != 1 {
					t.Error("expected exactly one final chunk flag")
				}
			}

			var payload strings.Builder
			for _, seq := range strings.Split(output, escapeEnd) {
				if i := strings.IndexByte(seq, ';'); i >= 0 {
					payload.WriteString(seq[i+1:])
				}
			}
			decoded, err := base64.StdEncoding.DecodeString(payload.String())
			if err != nil {
				t.Fatalf("payload is not base64: %v", err)
			}
			if !bytes.Equal(decoded, data) {
				t.Error("reassembled payload differs from input")
			}
		})
	}
}

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		input string
		size  int
		want  []string
	}{
		{input: "", size: 10, want: nil},
		{input: "hello", size: 10, want: []string{"hello"}},
		{input: "hello", size: 5, want: []string{"hello"}},
		{input: "hello world", size: 5, want: []string{"hello", " worl", "d"}},
	}

	for _, tt := range tests {
		got := splitIntoChunks(tt.input, tt.size)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
			t.Errorf("splitIntoChunks(%q, %d) = %q, want %q", tt.input, tt.size, got, tt.want)
		}
	}
}

type errorWriter struct {
	err error
}

func (w *errorWriter) Write(p []byte) (int, error) {
	return 0, w.err
}

func TestKittyEncoder_WriteError(t *testing.T) {
	enc := NewKittyEncoder(&errorWriter{err: bytes.ErrTooLarge})
	if err := enc.Encode([]byte("test")); err == nil {
		t.Error("expected error from failing writer")
	}
}
