// SPDX-License-Identifier: MPL-2.0

package util

import (
	"math/rand"
	"strings"
)

// Human-readable random string
func GenerateRandomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[rand.Intn(len(charset))]
	}
	return string(b)
}

// SanitizeFilename keeps download filenames safe for Content-Disposition
// headers and filesystems.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "-", "?", "-",
		"\"", "-", "<", "-", ">", "-", "|", "-", "\n", " ", "\r", " ",
	)
	name = replacer.Replace(name)
	if name == "" {
		return "export"
	}
	return name
}
