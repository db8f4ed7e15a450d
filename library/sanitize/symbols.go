package sanitize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	zeroWidthJoiner   = '\u200d'
	emojiPresentation = '\ufe0f'
	combiningKeycap   = '\u20e3'
)

func isSpace(r rune) bool {
	return unicode.IsSpace(r)
}

// removeSymbols NFKC-normalizes s and drops symbolic glyphs: category So
// (emoji, pictographs, dingbats, regional indicators) and emoji skin tone
// modifiers, along with emoji presentation selectors and keycaps. Joiners,
// other variation selectors and tag characters are dropped only when they
// trail a removed glyph, so scripts that rely on ZWJ keep it.
func removeSymbols(s string) string {
	s = norm.NFKC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	dropping := false
	for _, r := range s {
		switch {
		case unicode.Is(unicode.So, r), isSkinToneModifier(r):
			dropping = true
			continue
		case r == emojiPresentation, r == combiningKeycap:
			continue
		case dropping && isEmojiContinuation(r):
			continue
		}

		dropping = false
		b.WriteRune(r)
	}

	// dropping a glyph can put a combining mark next to a new base
	return norm.NFKC.String(b.String())
}

func isSkinToneModifier(r rune) bool {
	return r >= 0x1F3FB && r <= 0x1F3FF
}

func isEmojiContinuation(r rune) bool {
	switch {
	case r == zeroWidthJoiner:
		return true
	case r >= 0xFE00 && r <= 0xFE0E:
		return true
	case r >= 0xE0020 && r <= 0xE007F:
		return true
	default:
		return false
	}
}
