// Package decoder reverses the transport encoding around a raw audit batch.
package decoder

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// ErrDecode marks a corrupt or unreadable transport envelope. It is always fatal
// for the batch.
var ErrDecode = errors.New("decode batch")

// ErrTooLarge is wrapped into ErrDecode when the decompressed batch exceeds the limit.
var ErrTooLarge = errors.New("decoded batch exceeds size limit")

var gzipMagic = []byte{0x1f, 0x8b}

// Decoder turns one raw batch into plain text.
type Decoder interface {
	Decode(raw []byte) ([]byte, error)
}

// Gzip decodes compressed-only payloads, such as CloudTrail objects pulled from S3.
type Gzip struct {
	// MaxBytes caps the decompressed size. Zero means unlimited.
	MaxBytes int64
}

// Decode implements Decoder.
func (d Gzip) Decode(raw []byte) ([]byte, error) {
	out, err := gunzip(raw, d.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return out, nil
}

// Base64Gzip decodes the CloudWatch Logs subscription envelope: base64 text of a
// gzip stream.
type Base64Gzip struct {
	MaxBytes int64
}

// Decode implements Decoder.
func (d Base64Gzip) Decode(raw []byte) ([]byte, error) {
	compressed, err := decodeBase64(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %w", ErrDecode, err)
	}
	out, err := gunzip(compressed, d.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return out, nil
}

// Auto sniffs the framing. It accepts gzip, base64 of gzip, base64 of plain
// JSON, and plain JSON, in that order. Used for file drops and pulled objects
// whose producer may or may not have base64-wrapped the payload.
type Auto struct {
	MaxBytes int64
}

// Decode implements Decoder.
func (d Auto) Decode(raw []byte) ([]byte, error) {
	if bytes.HasPrefix(raw, gzipMagic) {
		return Gzip(d).Decode(raw)
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	if isJSONStart(trimmed[0]) {
		if d.MaxBytes > 0 && int64(len(trimmed)) > d.MaxBytes {
			return nil, fmt.Errorf("%w: %w", ErrDecode, ErrTooLarge)
		}
		return trimmed, nil
	}

	inner, err := decodeBase64(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: unrecognized framing: %w", ErrDecode, err)
	}
	if bytes.HasPrefix(inner, gzipMagic) {
		return Gzip(d).Decode(inner)
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) > 0 && isJSONStart(inner[0]) {
		if d.MaxBytes > 0 && int64(len(inner)) > d.MaxBytes {
			return nil, fmt.Errorf("%w: %w", ErrDecode, ErrTooLarge)
		}
		return inner, nil
	}
	return nil, fmt.Errorf("%w: unrecognized framing", ErrDecode)
}

// ForName returns the decoder registered under name: "gzip", "base64-gzip" or "auto".
func ForName(name string, maxBytes int64) (Decoder, error) {
	switch name {
	case "gzip":
		return Gzip{MaxBytes: maxBytes}, nil
	case "base64-gzip", "base64":
		return Base64Gzip{MaxBytes: maxBytes}, nil
	case "auto", "":
		return Auto{MaxBytes: maxBytes}, nil
	default:
		return nil, fmt.Errorf("unknown decoder %q", name)
	}
}

func gunzip(raw []byte, maxBytes int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	defer zr.Close()

	var r io.Reader = zr
	if maxBytes > 0 {
		r = io.LimitReader(zr, maxBytes+1)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip stream: %w", err)
	}
	if maxBytes > 0 && int64(len(out)) > maxBytes {
		return nil, ErrTooLarge
	}
	return out, nil
}

func decodeBase64(raw []byte) ([]byte, error) {
	text := bytes.TrimSpace(raw)
	out := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(out, text)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func isJSONStart(b byte) bool {
	return b == '{' || b == '['
}
