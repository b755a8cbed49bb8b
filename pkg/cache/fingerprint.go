package cache

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/xxh3"
)

// Fingerprint hashes the JSON encoding of parts, in order.
func Fingerprint(parts ...interface{}) (string, error) {
	h := xxh3.New()
	for i, part := range parts {
		data, err := json.Marshal(part)
		if err != nil {
			return "", fmt.Errorf("encode fingerprint part %d: %w", i, err)
		}
		// length prefix keeps ["ab","c"] and ["a","bc"] apart
		fmt.Fprintf(h, "%d:", len(data))
		if _, err := h.Write(data); err != nil {
			return "", err
		}
	}
	sum := h.Sum128().Bytes()
	return fmt.Sprintf("%x", sum[:]), nil
}
