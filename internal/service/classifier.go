package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/clavisedu/ragline/internal/model"
)

type Classification struct {
	Scope  string
	Tone   string
	UseRAG bool
}

const (
	ScopeGeneral    = "general"
	ScopeCurriculum = "curriculum"
	ScopeCourse     = "course"
	ScopeSupport    = "support"
	ScopeSmallTalk  = "small_talk"
)

var smallTalkMarkers = []string{
	"hello", "hi there", "hey", "good morning", "good afternoon", "good evening",
	"how are you", "what's up", "thanks", "thank you", "bye", "goodbye",
	"nice to meet", "who are you", "what is your name",
}

var domainNouns = []string{
	"ai", "machine learning", "ml", "model", "neural", "embedding", "data",
	"course", "lesson", "curriculum", "learn", "class", "enroll", "exercise",
	"prompt", "llm", "algorithm", "python", "train", "dataset", "homework",
	"certificate", "quiz", "teacher", "student",
}

var scopeRules = []struct {
	scope   string
	markers []string
}{
	{ScopeCourse, []string{"course", "enroll", "class", "lesson", "module", "certificate", "quiz"}},
	{ScopeCurriculum, []string{"curriculum", "learning path", "where do i start", "what should i learn", "prerequisite", "level"}},
	{ScopeSupport, []string{"account", "password", "payment", "refund", "subscription", "billing", "cancel"}},
}

// Classifier decides retrieval scope and response tone from the raw user
// message. Rules are deterministic; a classification never fails the turn.
type Classifier struct{}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify never returns an error: any internal fault falls back to
// retrieval-enabled general scope rather than silencing the turn.
func (c *Classifier) Classify(ctx context.Context, message string, audience model.Audience) (result Classification) {
	defer func() {
		if r := recover(); r != nil {
			logutil.GetLogger(ctx).Error("classifier panic, failing open", zap.Any("cause", r))
			result = Classification{Scope: ScopeGeneral, Tone: toneFor(audience), UseRAG: true}
		}
	}()

	normalized := strings.ToLower(strings.TrimSpace(message))
	result = Classification{Scope: ScopeGeneral, Tone: toneFor(audience), UseRAG: true}
	if normalized == "" {
		return result
	}

	if containsAny(normalized, smallTalkMarkers) && !containsAnyWord(normalized, domainNouns) {
		result.Scope = ScopeSmallTalk
		result.UseRAG = false
		return result
	}

	for _, rule := range scopeRules {
		if containsAny(normalized, rule.markers) {
			result.Scope = rule.scope
			break
		}
	}
	return result
}

func toneFor(audience model.Audience) string {
	switch audience {
	case model.AudienceChild:
		return "playful"
	case model.AudienceTeen:
		return "casual"
	case model.AudienceEducator:
		return "professional"
	default:
		return "friendly"
	}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// containsAnyWord matches single-word markers as whole tokens so short
// nouns like "ai" do not fire inside unrelated words.
func containsAnyWord(text string, markers []string) bool {
	tokens := map[string]struct{}{}
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		tokens[tok] = struct{}{}
	}
	for _, marker := range markers {
		if strings.ContainsRune(marker, ' ') {
			if strings.Contains(text, marker) {
				return true
			}
			continue
		}
		if _, ok := tokens[marker]; ok {
			return true
		}
	}
	return false
}
