package model

import (
	"crypto/md5"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	reUnsafe = regexp.MustCompile(`[^\w\s-]`)
	reSpaces = regexp.MustCompile(`[-\s]+`)
)

// SafeFilename converts name into a portable directory name. The md5 suffix
// keeps names that slug to the same string distinct.
func SafeFilename(name string) string {
	return SafeFilenameOpt(name, true)
}

// SafeFilenameOpt is SafeFilename with the hash suffix optional.
func SafeFilenameOpt(name string, addHash bool) string {
	var b strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	slug := reUnsafe.ReplaceAllString(b.String(), "")
	slug = strings.TrimSpace(slug)
	slug = reSpaces.ReplaceAllString(slug, "-")
	if !addHash {
		return slug
	}
	sum := md5.Sum([]byte(name))
	return slug + "." + hex.EncodeToString(sum[:])
}
