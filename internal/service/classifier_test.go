package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clavisedu/ragline/internal/model"
)

func TestClassifyScopes(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantScope string
		wantRAG   bool
	}{
		{"greeting only", "hello!", ScopeSmallTalk, false},
		{"thanks only", "thanks, bye", ScopeSmallTalk, false},
		{"greeting with domain question", "hi there, how do I enroll in the ML course?", ScopeCourse, true},
		{"course question", "what does the deep learning course cover?", ScopeCourse, true},
		{"curriculum question", "where do I start with machine learning?", ScopeCurriculum, true},
		{"support question", "I need to update my payment method", ScopeSupport, true},
		{"general domain question", "explain how a neural network is trained", ScopeGeneral, true},
		{"empty message", "", ScopeGeneral, true},
		{"ai not matched inside words", "she said it was fine", ScopeGeneral, true},
	}
	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(context.Background(), tt.message, model.AudienceAdult)
			require.Equal(t, tt.wantScope, got.Scope)
			require.Equal(t, tt.wantRAG, got.UseRAG)
		})
	}
}

func TestClassifyTonePerAudience(t *testing.T) {
	c := NewClassifier()
	require.Equal(t, "playful", c.Classify(context.Background(), "what is ai?", model.AudienceChild).Tone)
	require.Equal(t, "casual", c.Classify(context.Background(), "what is ai?", model.AudienceTeen).Tone)
	require.Equal(t, "professional", c.Classify(context.Background(), "what is ai?", model.AudienceEducator).Tone)
	require.Equal(t, "friendly", c.Classify(context.Background(), "what is ai?", model.AudienceAdult).Tone)
	require.Equal(t, "friendly", c.Classify(context.Background(), "what is ai?", model.Audience("")).Tone)
}

func TestContainsAnyWord(t *testing.T) {
	require.True(t, containsAnyWord("what is ai really", domainNouns))
	require.True(t, containsAnyWord("machine learning basics", domainNouns))
	require.False(t, containsAnyWord("she said it was fine", domainNouns))
	require.False(t, containsAnyWord("check your email", domainNouns))
}
