package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
)

// FileSha256 calculates the SHA-256 digest of a file.
// Returns the lowercase hex digest and the file size in bytes.
func FileSha256(filePath string) (string, int64, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	h := sha256.New()
	n, err := io.Copy(h, file)
	if err != nil {
		return "", 0, err
	}

	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashingWriter wraps an io.Writer and computes a running SHA-256
// digest and byte count of everything written through it.
type HashingWriter struct {
	w    io.Writer
	hash hash.Hash
	size int64
}

func NewHashingWriter(w io.Writer) *HashingWriter {
	return &HashingWriter{w: w, hash: sha256.New()}
}

func (hw *HashingWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	if n > 0 {
		hw.hash.Write(p[:n])
		hw.size += int64(n)
	}
	return n, err
}

// Sum returns the lowercase hex digest of all bytes written so far.
func (hw *HashingWriter) Sum() string {
	return hex.EncodeToString(hw.hash.Sum(nil))
}

// Size returns the number of bytes written so far.
func (hw *HashingWriter) Size() int64 {
	return hw.size
}
