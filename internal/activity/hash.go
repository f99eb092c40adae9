package activity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Hash derives the content cache key. Identical inputs always map to the same key.
func Hash(storyText string, t Type, studentAge int) string {
	h := sha256.New()
	h.Write([]byte(storyText))
	h.Write([]byte{0})
	h.Write([]byte(t))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(studentAge)))
	return hex.EncodeToString(h.Sum(nil))
}
