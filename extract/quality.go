package extract

import (
	"strings"
	"unicode"
)

// Text-layer quality heuristics for the PDF OCR-fallback decision. A PDF
// whose extracted text is empty, mostly garbage runes, or laced with
// zero-width-space runs gets escalated to OCR.

const (
	printableRatioThreshold = 0.85
	zeroWidthRunLength      = 3
)

// textNeedsOCR decides whether extracted PDF text is unreliable enough to
// escalate to OCR.
func textNeedsOCR(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	if printableRatio(text) < printableRatioThreshold {
		return true
	}
	return hasZeroWidthRun(text)
}

// printableRatio returns the fraction of printable characters in text.
// Garbage runes are Private Use Area U+E000-U+F8FF, U+FFFD, and control
// characters other than \n \r \t.
func printableRatio(text string) float64 {
	if len(text) == 0 {
		return 1.0
	}
	total, printable := 0, 0
	for _, r := range text {
		total++
		if isGarbageRune(r) {
			continue
		}
		if unicode.IsPrint(r) || r == '\n' || r == '\r' || r == '\t' {
			printable++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(printable) / float64(total)
}

func isGarbageRune(r rune) bool {
	if r >= 0xE000 && r <= 0xF8FF {
		return true
	}
	if r == 0xFFFD {
		return true
	}
	if r < 0x0020 && r != '\n' && r != '\r' && r != '\t' {
		return true
	}
	return false
}

// hasZeroWidthRun reports a run of zeroWidthRunLength or more consecutive
// zero-width spaces, a telltale of broken text-layer encoding.
func hasZeroWidthRun(text string) bool {
	run := 0
	for _, r := range text {
		if r == '\u200b' {
			run++
			if run >= zeroWidthRunLength {
				return true
			}
		} else {
			run = 0
		}
	}
	return false
}

// wordlikeRatio returns the ratio of tokens that look like words (2-15
// runes) to total tokens. Exposed to validators that want a cheap garbage
// signal.
func wordlikeRatio(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	wordlike := 0
	for _, f := range fields {
		if n := len([]rune(f)); n >= 2 && n <= 15 {
			wordlike++
		}
	}
	return float64(wordlike) / float64(len(fields))
}
