package backend

import (
	"sort"
	"strings"
)

// Scoring weights, applied uniformly across every search strategy.
const (
	scoreExactName   = 100
	scoreSubstring   = 50
	scoreKeyword     = 25
	scoreFormat      = 5
	scoreDirectBonus = 50

	// minKeywordLen excludes short noise tokens (v2, xl, of) from keyword
	// credit.
	minKeywordLen = 3
)

// Level buckets a raw confidence score.
type Level int

const (
	// LevelLow scores are never auto-actioned.
	LevelLow Level = iota
	// LevelMedium scores surface as uncertain candidates.
	LevelMedium
	// LevelHigh scores are eligible for automatic found with exact confidence.
	LevelHigh
)

// Thresholds for bucketing raw scores.
const (
	highThreshold   = 75
	mediumThreshold = 50
)

// Classify buckets a raw score.
func Classify(score int) Level {
	switch {
	case score >= highThreshold:
		return LevelHigh
	case score >= mediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// preferredFormats earn a small bonus: safetensors carries no pickled code.
var preferredFormats = []string{".safetensors", ".sft"}

// Score computes the confidence score of one candidate file name against the
// requested name. direct marks candidates discovered via direct-identifier
// lookup, which is authoritative and earns a flat bonus.
//
//	exact name match          100
//	substring/partial match   +50
//	per matching keyword      +25 (tokens longer than 2)
//	preferred file format      +5
//	direct-identifier lookup  +50
func Score(requested, candidate string, direct bool) int {
	score := 0

	if candidate == requested {
		score += scoreExactName
	} else {
		reqStem := strings.ToLower(Stem(requested))
		candLower := strings.ToLower(candidate)
		if reqStem != "" && strings.Contains(candLower, reqStem) {
			score += scoreSubstring
		}
		for _, kw := range Keywords(requested) {
			if strings.Contains(candLower, kw) {
				score += scoreKeyword
			}
		}
	}

	for _, ext := range preferredFormats {
		if strings.HasSuffix(strings.ToLower(candidate), ext) {
			score += scoreFormat
			break
		}
	}
	if direct {
		score += scoreDirectBonus
	}
	return score
}

// knownExtensions are stripped when deriving query stems and keywords.
var knownExtensions = []string{
	".safetensors", ".ckpt", ".pth", ".pt", ".bin", ".onnx", ".gguf", ".sft", ".vae",
}

// Stem strips a known artifact extension from name.
func Stem(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range knownExtensions {
		if strings.HasSuffix(lower, ext) {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// Keywords splits the requested name stem into lowercase search tokens,
// dropping tokens of length <= 2.
func Keywords(name string) []string {
	stem := strings.ToLower(Stem(name))
	tokens := strings.FieldsFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	out := tokens[:0]
	for _, tok := range tokens {
		if len(tok) >= minKeywordLen {
			out = append(out, tok)
		}
	}
	return out
}

// QueryString derives a registry query from the requested name: extension
// stripped, separators replaced with spaces.
func QueryString(name string) string {
	return strings.Join(strings.FieldsFunc(Stem(name), func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	}), " ")
}

// RankCandidates sorts candidates by descending score, breaking ties by name
// for deterministic output, and returns at most limit entries.
func RankCandidates[T any](candidates []T, score func(T) int, name func(T) string, limit int) []T {
	sort.SliceStable(candidates, func(i, j int) bool {
		si, sj := score(candidates[i]), score(candidates[j])
		if si != sj {
			return si > sj
		}
		return name(candidates[i]) < name(candidates[j])
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates
}
