// Package semantics implements MarketSemantics (spec.md §4.6): inferring
// which side of a binary market (YES/NO) corresponds to the home team
// winning, from the market's natural-language question text.
package semantics

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases s and collapses non-alphanumeric runs to spaces.
func Normalize(s string) string {
	lower := strings.ToLower(s)
	return strings.TrimSpace(nonAlnum.ReplaceAllString(lower, " "))
}

// nonWinnerKeywords reject a market outright: these describe prop bets,
// not a moneyline winner market.
var nonWinnerKeywords = []string{
	"over", "under", "total", "spread", "handicap", "player", "first",
	"next", "race", "exact score", "both teams", "clean sheet",
}

// winnerKeywords are required for a market to be eligible for YES/home
// inference at all.
var winnerKeywords = []string{"win", "winner", "beat", "beats", "moneyline"}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// teamPresent reports whether the normalized team name appears in text,
// falling back to any of its tokens of length >= 4 if the full name doesn't.
func teamPresent(text, teamName string) bool {
	norm := Normalize(teamName)
	if norm == "" {
		return false
	}
	if strings.Contains(text, norm) {
		return true
	}
	for _, tok := range strings.Fields(norm) {
		if len(tok) >= 4 && strings.Contains(text, tok) {
			return true
		}
	}
	return false
}

var winPhraseTemplates = []string{"will %s win", "%s to win", "%s wins", "%s beat"}

func phraseMatches(text, teamName string) bool {
	norm := Normalize(teamName)
	if norm == "" {
		return false
	}
	firstTok := norm
	if fields := strings.Fields(norm); len(fields) > 0 {
		firstTok = fields[0]
	}
	for _, tmpl := range winPhraseTemplates {
		for _, candidate := range []string{norm, firstTok} {
			phrase := strings.ReplaceAll(tmpl, "%s", candidate)
			if strings.Contains(text, phrase) {
				return true
			}
		}
	}
	return false
}

// Infer resolves whether the market's YES outcome corresponds to the
// home team winning, per spec.md §4.6. ok is false when the market
// should be skipped (non-winner market, no winner keyword, or an
// ambiguous question with both team names but no disambiguating phrase).
func Infer(question, homeTeam, awayTeam string) (yesIsHome bool, ok bool) {
	text := Normalize(question)

	if containsAny(text, nonWinnerKeywords) {
		return false, false
	}
	if !containsAny(text, winnerKeywords) {
		return false, false
	}

	homePresent := teamPresent(text, homeTeam)
	awayPresent := teamPresent(text, awayTeam)

	switch {
	case homePresent && !awayPresent:
		return true, true
	case awayPresent && !homePresent:
		return false, true
	case homePresent && awayPresent:
		if phraseMatches(text, homeTeam) {
			return true, true
		}
		if phraseMatches(text, awayTeam) {
			return false, true
		}
		return false, false
	default:
		return false, false
	}
}
