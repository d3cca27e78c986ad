// Package textnorm rewrites numeric shorthand in chat messages so that
// "Taxi 20k" and "Taxi 20 000" both read "Taxi 20000".
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

// A marker must not be followed by a letter ("5kg" is not five thousand),
// and the digit run must not be the fractional part of a decimal ("2.5k" is
// left alone).
var (
	thousandRe = regexp.MustCompile(`(?i)(^|[^\d.,])(\d+)\s?(тысяч[аи]?|тыс|ming|k|к)(\P{L}|$)`)
	millionRe  = regexp.MustCompile(`(?i)(^|[^\d.,])(\d+)\s?(million|миллион(?:а|ов)?|mln|млн|m)(\P{L}|$)`)
)

// groupsRe matches a number written in thousands groups: one to three
// digits, then one or more groups of exactly three digits, each group after a
// single space (regular, no-break or narrow no-break).
var groupsRe = regexp.MustCompile(`(^|[^\d.,])(\d{1,3}(?:[\s\x{00A0}\x{202F}]\d{3})+)(\D|$)`)


// Normalize expands magnitude suffixes, then joins digit groups written with
// a single space between them ("1 500 000"). Joining runs last and only
// accepts three-digit groups, so an expanded amount is never glued to a
// neighbouring number: "taxi 20k 3" reads "taxi 20000 3". It never fails;
// text without shorthand is returned unchanged.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	s := replaceAll(thousandRe, text, func(m []string) string { return m[1] + m[2] + "000" + m[4] })
	s = replaceAll(millionRe, s, func(m []string) string { return m[1] + m[2] + "000000" + m[4] })
	return replaceAll(groupsRe, s, func(m []string) string { return m[1] + dropSpaces(m[2]) + m[3] })
}

func dropSpaces(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '\u202F' {
			return -1
		}
		return r
	}, s)
}

// replaceAll repeats the replacement until nothing changes. Adjacent matches
// share their boundary character, so a single pass can miss every other one.
func replaceAll(re *regexp.Regexp, s string, repl func(groups []string) string) string {
	for {
		next := re.ReplaceAllStringFunc(s, func(match string) string {
			return repl(re.FindStringSubmatch(match))
		})
		if next == s {
			return s
		}
		s = next
	}
}
