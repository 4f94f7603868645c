package archive

import (
	"bytes"
	stdbzip2 "compress/bzip2"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"
)

func TestParseCodec(t *testing.T) {
	tests := []struct {
		input   string
		want    Codec
		wantErr bool
	}{
		{input: "gzip", want: CodecGzip},
		{input: "GZIP", want: CodecGzip},
		{input: "bzip2", want: CodecBzip2},
		{input: "xz", want: CodecXZ},
		{input: "zstd", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCodec(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("error type = %T, want *ConfigurationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("codec = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestValidateLevel(t *testing.T) {
	for level := 1; level <= 9; level++ {
		if err := ValidateLevel(level); err != nil {
			t.Errorf("level %d: unexpected error: %v", level, err)
		}
	}
	for _, level := range []int{0, -1, 10, 100} {
		if err := ValidateLevel(level); err == nil {
			t.Errorf("level %d: expected error", level)
		}
	}
}

func TestCodecExtension(t *testing.T) {
	if got := CodecGzip.Extension(); got != "tar.gz" {
		t.Errorf("gzip extension = %s", got)
	}
	if got := CodecBzip2.Extension(); got != "tar.bz2" {
		t.Errorf("bzip2 extension = %s", got)
	}
	if got := CodecXZ.Extension(); got != "tar.xz" {
		t.Errorf("xz extension = %s", got)
	}
}

// decode decompresses data with an independent decoder for the codec.
func decode(t *testing.T, codec Codec, data []byte) []byte {
	t.Helper()

	var r io.Reader
	switch codec {
	case CodecGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("gzip reader: %v", err)
		}
		r = gr
	case CodecBzip2:
		r = stdbzip2.NewReader(bytes.NewReader(data))
	case CodecXZ:
		xr, err := xz.NewReader(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("xz reader: %v", err)
		}
		r = xr
	default:
		t.Fatalf("unknown codec %s", codec)
	}

	decoded, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return decoded
}

func TestCodecRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("dotfiles are worth keeping\n", 500))

	for _, codec := range []Codec{CodecGzip, CodecBzip2, CodecXZ} {
		for level := 1; level <= 9; level++ {
			t.Run(fmt.Sprintf("%s/level-%d", codec, level), func(t *testing.T) {
				var buf bytes.Buffer
				w, err := codec.NewWriter(&buf, level)
				if err != nil {
					t.Fatalf("NewWriter() error = %v", err)
				}
				if _, err := w.Write(payload); err != nil {
					t.Fatalf("write: %v", err)
				}
				if err := w.Close(); err != nil {
					t.Fatalf("close: %v", err)
				}
				if buf.Len() == 0 {
					t.Fatal("compressed output is empty")
				}

				if decoded := decode(t, codec, buf.Bytes()); !bytes.Equal(decoded, payload) {
					t.Error("round-trip content mismatch")
				}
			})
		}
	}
}

func TestCodecLevelMonotonicity(t *testing.T) {
	// Highly repetitive content so level differences are visible.
	payload := []byte(strings.Repeat("alias ll='ls -la' # common shell alias\n", 5000))

	size := func(level int) int {
		var buf bytes.Buffer
		w, err := CodecGzip.NewWriter(&buf, level)
		if err != nil {
			t.Fatalf("NewWriter(level=%d): %v", level, err)
		}
		if _, err := w.Write(payload); err != nil {
			t.Fatal(err)
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		return buf.Len()
	}

	if size(1) < size(9) {
		t.Errorf("level 1 output (%d bytes) smaller than level 9 (%d bytes)", size(1), size(9))
	}
}

func TestCodecRejectsBadLevel(t *testing.T) {
	var buf bytes.Buffer
	if _, err := CodecGzip.NewWriter(&buf, 0); err == nil {
		t.Error("expected error for level 0")
	}
	if _, err := CodecXZ.NewWriter(&buf, 10); err == nil {
		t.Error("expected error for level 10")
	}
}
