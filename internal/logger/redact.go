package logger

import "strings"

// RedactEmail masks the local part of an address for logs.
// "sam.carter@example.com" becomes "sa***@example.com"; local parts of two
// characters or fewer are masked entirely.
func RedactEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "***@***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > 2 {
		return local[:2] + "***@" + domain
	}
	return "***@" + domain
}
