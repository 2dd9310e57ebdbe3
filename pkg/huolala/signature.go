package huolala

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// SigningString canonicalizes fields into the string that gets hashed:
// keys in ascending byte order, empty values skipped, "key=value" pairs
// joined by "&", secret appended with no separator.
func SigningString(fields map[string]string, secret string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := fields[k]
		if v == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	b.WriteString(secret)
	return b.String()
}

// Sign returns the lowercase hex MD5 of the signing string.
// MD5 is what the platform verifies against, so it is kept for wire compatibility.
func Sign(fields map[string]string, secret string) string {
	sum := md5.Sum([]byte(SigningString(fields, secret)))
	return hex.EncodeToString(sum[:])
}
