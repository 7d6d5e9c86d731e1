package result

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"

	"codementor/internal/types/mentor"
)

// KeyLen is the length of every key returned by KeyFor.
const KeyLen = sha256.Size * 2

// KeyFor fingerprints (files, intent). Entries are hashed in path order with every
// field length-prefixed, so map iteration order and embedded separators can't
// produce the same byte stream for different inputs.
func KeyFor(files mentor.FileSet, intent mentor.Intent) string {
	h := sha256.New()
	writeField(h, []byte(intent.String()))

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(files)))
	h.Write(n[:])
	for _, p := range files.SortedPaths() {
		writeField(h, []byte(p))
		writeField(h, []byte(files[p]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, data []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))
	h.Write(n[:])
	h.Write(data)
}
