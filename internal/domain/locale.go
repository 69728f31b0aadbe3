package domain

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// LocaleIDSeparator joins a stored attribute-value ID with a locale code to
// form the identity of a projected locale record. Virtual identities never
// collide with stored ones because stored IDs carry no separator.
const LocaleIDSeparator = "~"

// LocaleTitleSeparator joins a display title with its locale suffix.
const LocaleTitleSeparator = " › "

// NormalizeLocale canonicalises a locale code (e.g. "de_DE" -> "de-DE").
// The main-locale marker passes through untouched.
func NormalizeLocale(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("locale: empty code")
	}
	if code == MainLocaleMarker {
		return code, nil
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("locale: parse %q: %w", code, err)
	}
	return tag.String(), nil
}

// LocaleRecordID derives the virtual identity of a locale projection record.
func LocaleRecordID(baseID, locale string) string {
	return baseID + LocaleIDSeparator + locale
}

// SplitLocaleRecordID splits a virtual identity back into the stored ID and
// the locale code. The locale is empty for plain stored identities.
func SplitLocaleRecordID(id string) (baseID, locale string) {
	if i := strings.Index(id, LocaleIDSeparator); i >= 0 {
		return id[:i], id[i+len(LocaleIDSeparator):]
	}
	return id, ""
}

// LocaleTitle suffixes a display title with the locale code.
func LocaleTitle(title, locale string) string {
	return title + LocaleTitleSeparator + locale
}
