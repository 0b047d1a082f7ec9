package object

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strconv"
)

// HashObject computes the SHA-1 of the envelope "type len\0content", the
// exact scheme git uses for object ids.
func HashObject(objType ObjectType, data []byte) Hash {
	h := sha1.New()
	h.Write([]byte(objType))
	h.Write([]byte{' '})
	h.Write([]byte(strconv.Itoa(len(data))))
	h.Write([]byte{0})
	h.Write(data)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// HashBlob returns the id git assigns to data with `git hash-object -t blob`.
func HashBlob(data []byte) Hash {
	return HashObject(TypeBlob, data)
}

// HashTree returns the id of a serialized tree (see SerializeTreeEntries).
func HashTree(serialized []byte) Hash {
	return HashObject(TypeTree, serialized)
}

// ValidateHash checks that h is a 40-character lowercase hex string.
func ValidateHash(h Hash) error {
	s := string(h)
	if len(s) != HashHexSize {
		return fmt.Errorf("hash length %d, expected %d", len(s), HashHexSize)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("hash %q contains non-hex character %q", s, c)
		}
	}
	return nil
}

// Raw decodes h into its 20 byte binary form.
func (h Hash) Raw() ([HashSize]byte, error) {
	var out [HashSize]byte
	if err := ValidateHash(h); err != nil {
		return out, err
	}
	if _, err := hex.Decode(out[:], []byte(h)); err != nil {
		return out, err
	}
	return out, nil
}

// Short returns the abbreviated form used in log lines and CLI output.
func (h Hash) Short() string {
	if len(h) <= 7 {
		return string(h)
	}
	return string(h[:7])
}
