package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// Source is one rule base source file.
type Source struct {
	Name     string
	Content  []byte
	Modified int64 // unix seconds
}

// Digest returns the SHA-256 content digest of a rule base. Order of
// sources does not matter.
func Digest(sources []Source) string {
	sorted := slices.Clone(sources)
	slices.SortFunc(sorted, func(a, b Source) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	h := sha256.New()
	var n [8]byte
	for _, s := range sorted {
		le.PutUint64(n[:], uint64(len(s.Name)))
		h.Write(n[:])
		h.Write([]byte(s.Name))
		le.PutUint64(n[:], uint64(len(s.Content)))
		h.Write(n[:])
		h.Write(s.Content)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MaxModified returns the newest modification time among sources.
func MaxModified(sources []Source) int64 {
	var m int64
	for _, s := range sources {
		m = max(m, s.Modified)
	}
	return m
}
