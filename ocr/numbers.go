package ocr

import (
	"strconv"
	"strings"
	"unicode"
)

// SplitNumbers interprets one OCR word as ticket numbers. Words in
// [1,90] are a single number. Three- and four-digit words are assumed to
// be two neighbouring numbers that the OCR glued together and are split
// where both halves are plausible ticket numbers. Anything else yields
// nothing.
func SplitNumbers(word string) []int {
	s := strings.TrimFunc(word, func(r rune) bool { return !unicode.IsDigit(r) })
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	if n >= 1 && n <= 90 {
		return []int{n}
	}

	switch len(s) {
	case 3:
		if a, b := atoi(s[:1]), atoi(s[1:]); a >= 1 && a <= 9 && b >= 10 && b <= 90 {
			return []int{a, b}
		}
		if a, b := atoi(s[:2]), atoi(s[2:]); a >= 1 && a <= 90 && b >= 1 && b <= 9 {
			return []int{a, b}
		}
	case 4:
		if a, b := atoi(s[:2]), atoi(s[2:]); a >= 1 && a <= 90 && b >= 1 && b <= 90 {
			return []int{a, b}
		}
		if a, b := atoi(s[:1]), atoi(s[1:]); a >= 1 && a <= 9 && b >= 1 && b <= 90 {
			return []int{a, b}
		}
	}
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
