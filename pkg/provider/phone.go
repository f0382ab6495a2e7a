package provider

import "strings"

// minMatch is the number of trailing digits two numbers must share to be
// considered equal when neither is an exact match.
const minMatch = 7

// NormalizeNumber strips everything but digits and a leading plus sign.
func NormalizeNumber(number string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(number) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func digitsOnly(number string) string {
	return strings.TrimPrefix(NormalizeNumber(number), "+")
}

// PhoneNumbersEqual reports whether two phone numbers refer to the same line.
// Formatting is ignored. Numbers of at least minMatch digits match when their
// trailing minMatch digits agree, which lets a national number match its
// international form.
func PhoneNumbersEqual(a, b string) bool {
	da, db := digitsOnly(a), digitsOnly(b)
	if da == "" || db == "" {
		return false
	}
	if da == db {
		return true
	}
	if len(da) < minMatch || len(db) < minMatch {
		return false
	}
	return da[len(da)-minMatch:] == db[len(db)-minMatch:]
}

// phoneNumbersEqualSQL is the SQL binding of PhoneNumbersEqual. NULL never
// matches.
func phoneNumbersEqualSQL(a, b interface{}) bool {
	sa, okA := sqlText(a)
	sb, okB := sqlText(b)
	if !okA || !okB {
		return false
	}
	return PhoneNumbersEqual(sa, sb)
}

func sqlText(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []byte:
		return string(t), true
	default:
		return "", false
	}
}
