package transcribe

import "strings"

var shortCodes = map[string]string{
	"fr": "F",
	"en": "E",
	"es": "S",
}

var defaultLocales = map[string]string{
	"F": "fr-CA",
	"E": "en-CA",
	"S": "es-US",
}

// ShortCode maps a runner locale such as fr-CA to the internal one-letter
// language code. Unknown locales come back unchanged with ok == false.
func ShortCode(locale string) (code string, ok bool) {
	lang, _, _ := strings.Cut(strings.ToLower(locale), "-")
	if c, found := shortCodes[lang]; found {
		return c, true
	}
	return locale, false
}

// Locale is the inverse of ShortCode. It returns fallback for codes it does
// not know.
func Locale(code, fallback string) string {
	if l, found := defaultLocales[strings.ToUpper(code)]; found {
		return l
	}
	return fallback
}
