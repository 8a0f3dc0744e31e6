package services

import (
	"sort"
	"strings"
)

// ScoredQuestion is a candidate annotated with its heuristic score and the
// quality tags it matched. Derived only; never persisted on its own.
type ScoredQuestion struct {
	CandidateQuestion
	Score       int      `json:"score"`
	MatchedTags []string `json:"matched_tags"`
}

const (
	highValueMinTags = 2
	highValueTopN    = 30
	maxQuestionScore = 10
)

// The five question-quality heuristics. A question earns a tag when its
// lower-cased text contains any keyword of that tag's set. Keyword sets are
// fixed: scoring must stay deterministic across runs.
var questionTags = []struct {
	Tag      string
	Keywords []string
}{
	{"temporal", []string{
		"언제", "기간", "동안", "까지", "며칠", "얼마나 걸리",
		"when", "how long", "period", "duration", "deadline",
	}},
	{"comparative", []string{
		"비교", "대비", "차이", "더 나은", "어떤 게", "vs",
		"compare", "difference", "versus", "better",
	}},
	{"causal", []string{
		"왜", "이유", "원인", "때문", "어떻게 되",
		"why", "reason", "cause", "because",
	}},
	{"risk", []string{
		"리스크", "위험", "손실", "연체", "불이익", "해지",
		"risk", "loss", "penalty", "overdue",
	}},
	{"quantitative", []string{
		"얼마", "계산", "평균", "비율", "금리", "수수료", "한도",
		"how much", "calculate", "average", "rate", "limit",
	}},
}

// ScoreQuestion evaluates one candidate against the five tag sets.
// score = min(2 * matched tags, 10).
func ScoreQuestion(candidate CandidateQuestion) ScoredQuestion {
	text := strings.ToLower(candidate.Question)

	var matched []string
	for _, tag := range questionTags {
		for _, keyword := range tag.Keywords {
			if strings.Contains(text, keyword) {
				matched = append(matched, tag.Tag)
				break
			}
		}
	}

	score := len(matched) * 2
	if score > maxQuestionScore {
		score = maxQuestionScore
	}

	return ScoredQuestion{
		CandidateQuestion: candidate,
		Score:             score,
		MatchedTags:       matched,
	}
}

// TopHighValueQuestions scores all candidates, keeps those matching at least
// two tags, and returns the top 30 ordered by score descending with ties
// broken by total tokens descending.
func TopHighValueQuestions(candidates []CandidateQuestion) []ScoredQuestion {
	scored := make([]ScoredQuestion, 0, len(candidates))
	for _, candidate := range candidates {
		sq := ScoreQuestion(candidate)
		if len(sq.MatchedTags) >= highValueMinTags {
			scored = append(scored, sq)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].TotalTokens > scored[j].TotalTokens
	})

	if len(scored) > highValueTopN {
		scored = scored[:highValueTopN]
	}
	return scored
}
