// Package validate holds pure input validators used before any mutation.
package validate

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 .\-()]{6,19}$`)
)

// Email reports whether s looks like a deliverable address.
func Email(s string) bool {
	return len(s) <= 255 && emailRe.MatchString(s)
}

// Phone reports whether s looks like a phone number. Accepts an optional
// leading +, digits, and common separators.
func Phone(s string) bool {
	return phoneRe.MatchString(s)
}

// SafeFilename rejects names that could escape the upload directory or
// collide with hidden files.
func SafeFilename(name string) error {
	if name == "" {
		return fmt.Errorf("validate: empty filename")
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return fmt.Errorf("validate: filename %q contains path separators", name)
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("validate: filename %q contains parent references", name)
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("validate: filename %q is hidden", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("validate: filename %q contains control characters", name)
		}
	}
	return nil
}

// AllowedExtension reports whether the filename's extension is in the
// configured allow list. Comparison is case-insensitive.
func AllowedExtension(name string, allowed []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range allowed {
		if ext == strings.ToLower(a) {
			return true
		}
	}
	return false
}

// audioMagic maps known audio container signatures to a label. Offsets are
// from the start of the file except m4a, whose "ftyp" box starts at byte 4.
var audioMagic = []struct {
	offset int
	sig    []byte
	label  string
}{
	{0, []byte("RIFF"), "wav"},
	{0, []byte("ID3"), "mp3"},
	{0, []byte{0xFF, 0xFB}, "mp3"},
	{0, []byte{0xFF, 0xF3}, "mp3"},
	{0, []byte{0xFF, 0xF2}, "mp3"},
	{0, []byte("OggS"), "ogg"},
	{0, []byte("fLaC"), "flac"},
	{0, []byte{0x1A, 0x45, 0xDF, 0xA3}, "webm"},
	{4, []byte("ftyp"), "m4a"},
}

// AudioHeader sniffs the first bytes of an upload and returns the detected
// container label, or an error if no known audio signature matches. Callers
// should pass at least the first 12 bytes.
func AudioHeader(head []byte) (string, error) {
	for _, m := range audioMagic {
		end := m.offset + len(m.sig)
		if len(head) >= end && bytes.Equal(head[m.offset:end], m.sig) {
			return m.label, nil
		}
	}
	return "", fmt.Errorf("validate: unrecognized audio file header")
}
