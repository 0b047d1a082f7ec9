package entry

import (
	"errors"
	"fmt"
	"strings"
)

// Fractional index keys order siblings as plain strings. A key is an integer
// part whose head letter encodes its length (a-z grow upwards from "a0",
// A-Z downwards) followed by an optional base62 fraction without trailing
// zeros. A new key always fits between two existing ones, so inserting never
// renumbers siblings.

const keyDigits = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

var smallestInteger = "A" + strings.Repeat("0", 26)

var errKeyExhausted = errors.New("index key space exhausted")

// KeyBetween returns a key strictly between a and b. Empty strings stand for
// the open ends: KeyBetween("", "") is "a0", KeyBetween(a, "") sorts after a.
func KeyBetween(a, b string) (string, error) {
	if a != "" {
		if err := ValidateKey(a); err != nil {
			return "", err
		}
	}
	if b != "" {
		if err := ValidateKey(b); err != nil {
			return "", err
		}
	}
	if a != "" && b != "" && a >= b {
		return "", fmt.Errorf("index key %q is not below %q", a, b)
	}

	if a == "" {
		if b == "" {
			return "a0", nil
		}
		ib, _ := integerPart(b)
		fb := b[len(ib):]
		if ib == smallestInteger {
			return ib + midpoint("", fb), nil
		}
		if ib < b {
			return ib, nil
		}
		res, ok := decrementInteger(ib)
		if !ok {
			return "", errKeyExhausted
		}
		return res, nil
	}

	ia, _ := integerPart(a)
	fa := a[len(ia):]
	if b == "" {
		i, ok := incrementInteger(ia)
		if !ok {
			return ia + midpoint(fa, ""), nil
		}
		return i, nil
	}

	ib, _ := integerPart(b)
	fb := b[len(ib):]
	if ia == ib {
		return ia + midpoint(fa, fb), nil
	}
	i, ok := incrementInteger(ia)
	if !ok {
		return "", errKeyExhausted
	}
	if i < b {
		return i, nil
	}
	return ia + midpoint(fa, ""), nil
}

// ValidateKey checks that key is a well formed index key.
func ValidateKey(key string) error {
	if key == smallestInteger {
		return fmt.Errorf("invalid index key %q", key)
	}
	i, err := integerPart(key)
	if err != nil {
		return err
	}
	for j := 0; j < len(key); j++ {
		if strings.IndexByte(keyDigits, key[j]) < 0 {
			return fmt.Errorf("invalid index key %q", key)
		}
	}
	if f := key[len(i):]; strings.HasSuffix(f, "0") {
		return fmt.Errorf("invalid index key %q: trailing zero", key)
	}
	return nil
}

// midpoint returns a fraction strictly between a and b, where b == "" is
// the upper end. Neither may have trailing zeros.
func midpoint(a, b string) string {
	if b != "" {
		n := 0
		for n < len(b) && digitAt(a, n) == b[n] {
			n++
		}
		if n > 0 {
			rest := ""
			if n < len(a) {
				rest = a[n:]
			}
			return b[:n] + midpoint(rest, b[n:])
		}
	}
	da := 0
	if a != "" {
		da = strings.IndexByte(keyDigits, a[0])
	}
	db := len(keyDigits)
	if b != "" {
		db = strings.IndexByte(keyDigits, b[0])
	}
	if db-da > 1 {
		return string(keyDigits[(da+db+1)/2])
	}
	if len(b) > 1 {
		return b[:1]
	}
	rest := ""
	if len(a) > 1 {
		rest = a[1:]
	}
	return string(keyDigits[da]) + midpoint(rest, "")
}

func digitAt(s string, i int) byte {
	if i < len(s) {
		return s[i]
	}
	return '0'
}

func integerLength(head byte) (int, error) {
	switch {
	case head >= 'a' && head <= 'z':
		return int(head-'a') + 2, nil
	case head >= 'A' && head <= 'Z':
		return int('Z'-head) + 2, nil
	}
	return 0, fmt.Errorf("invalid index key head %q", head)
}

func integerPart(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty index key")
	}
	n, err := integerLength(key[0])
	if err != nil {
		return "", err
	}
	if n > len(key) {
		return "", fmt.Errorf("invalid index key %q", key)
	}
	return key[:n], nil
}

func incrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	carry := true
	for i := len(digs) - 1; carry && i >= 0; i-- {
		d := strings.IndexByte(keyDigits, digs[i]) + 1
		if d == len(keyDigits) {
			digs[i] = '0'
		} else {
			digs[i] = keyDigits[d]
			carry = false
		}
	}
	if !carry {
		return string(head) + string(digs), true
	}
	switch head {
	case 'Z':
		return "a0", true
	case 'z':
		return "", false
	}
	h := head + 1
	if h > 'a' {
		digs = append(digs, '0')
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}

func decrementInteger(x string) (string, bool) {
	head := x[0]
	digs := []byte(x[1:])
	borrow := true
	for i := len(digs) - 1; borrow && i >= 0; i-- {
		d := strings.IndexByte(keyDigits, digs[i]) - 1
		if d == -1 {
			digs[i] = keyDigits[len(keyDigits)-1]
		} else {
			digs[i] = keyDigits[d]
			borrow = false
		}
	}
	if !borrow {
		return string(head) + string(digs), true
	}
	switch head {
	case 'a':
		return "Z" + string(keyDigits[len(keyDigits)-1]), true
	case 'A':
		return "", false
	}
	h := head - 1
	if h < 'Z' {
		digs = append(digs, keyDigits[len(keyDigits)-1])
	} else {
		digs = digs[:len(digs)-1]
	}
	return string(h) + string(digs), true
}
