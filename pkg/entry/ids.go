package entry

import (
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"lukechampine.com/blake3"

	"github.com/odvcencio/folio/pkg/object"
)

// NewID returns a fresh entry id. Version 7 ids sort by creation time.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// RowHash identifies one row: the same blob at another path is another row.
func RowHash(fileHash object.Hash, filePath string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(fileHash))
	h.Write([]byte{0})
	h.Write([]byte(filePath))
	return hex.EncodeToString(h.Sum(nil))
}

// Fold lower-cases s and strips diacritics: "Crème Brûlée" -> "creme brulee".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Slugify turns a title into a path segment: folded letters and digits
// joined by single dashes.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range Fold(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
			continue
		}
		dash = true
	}
	if b.Len() == 0 {
		return "entry"
	}
	return b.String()
}
