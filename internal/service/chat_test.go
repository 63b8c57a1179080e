package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clavisedu/ragline/internal/config"
	"github.com/clavisedu/ragline/internal/knowledge"
	"github.com/clavisedu/ragline/internal/model"
	appErr "github.com/clavisedu/ragline/internal/pkg/errors"
)

type fakeRetriever struct {
	passages []RetrievedPassage
	err      error
	calls    int
	lastOpts SearchOptions
}

func (f *fakeRetriever) Search(_ context.Context, _ string, opts SearchOptions) ([]RetrievedPassage, error) {
	f.calls++
	f.lastOpts = opts
	return f.passages, f.err
}

type fakeGenerator struct {
	response   string
	err        error
	lastPrompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	return f.response, f.err
}

type fakeRecorder struct {
	turns []Turn
}

func (f *fakeRecorder) RecordAsync(_ context.Context, turn Turn) string {
	f.turns = append(f.turns, turn)
	return fmt.Sprintf("turn-%d", len(f.turns))
}

func newTestOrchestrator(t *testing.T, ret *fakeRetriever, gen *fakeGenerator, rec *fakeRecorder) *ChatOrchestrator {
	t.Helper()
	set, err := knowledge.Load("")
	require.NoError(t, err)
	return NewChatOrchestrator(
		NewClassifier(),
		ret,
		knowledge.NewAssembler(set, 2000),
		NewPromptAssembler(config.PromptConfig{MaxChars: 12000, HistoryTurns: 6, SourceChars: 1200}),
		gen,
		rec,
		5*time.Second,
	)
}

func chatTurn(message string) ChatInput {
	return ChatInput{
		Messages:  []model.ChatMessage{{Role: model.ChatRoleUser, Content: message}},
		Audience:  model.AudienceAdult,
		EnableRAG: true,
	}
}

func TestChatGroundedTurn(t *testing.T) {
	ret := &fakeRetriever{passages: []RetrievedPassage{
		{
			SearchResult: model.SearchResult{
				ContentType:    model.ContentTypeCourse,
				ContentID:      "ml-201",
				Title:          "Machine Learning Fundamentals",
				RelevanceScore: 0.82,
				MatchType:      model.MatchTypeHybrid,
			},
			Excerpt: "Covers supervised learning end to end.",
		},
	}}
	gen := &fakeGenerator{response: "The ML course covers supervised learning."}
	rec := &fakeRecorder{}
	orch := newTestOrchestrator(t, ret, gen, rec)

	out, err := orch.Chat(context.Background(), chatTurn("what does the machine learning course cover?"))
	require.NoError(t, err)
	require.Equal(t, gen.response, out.Response)
	require.True(t, out.RagEnabled)
	require.Len(t, out.Sources, 1)
	require.Equal(t, 1, out.SourcesUsed)
	require.Equal(t, "turn-1", out.AnalyticsID)
	require.False(t, out.Degraded)
	require.Contains(t, gen.lastPrompt, "Machine Learning Fundamentals")

	require.Len(t, rec.turns, 1)
	require.Equal(t, ScopeCourse, rec.turns[0].Intent)
	require.Len(t, rec.turns[0].Sources, 1)
	require.Equal(t, "ml-201", rec.turns[0].Sources[0].ContentID)
}

func TestChatScopeNarrowsContentTypes(t *testing.T) {
	ret := &fakeRetriever{}
	orch := newTestOrchestrator(t, ret, &fakeGenerator{response: "ok"}, &fakeRecorder{})

	_, err := orch.Chat(context.Background(), chatTurn("how do I get a refund?"))
	require.NoError(t, err)
	require.Equal(t, []model.ContentType{model.ContentTypeFAQ, model.ContentTypeKnowledgeBase}, ret.lastOpts.ContentTypes)
}

func TestChatSmallTalkSkipsRetrieval(t *testing.T) {
	ret := &fakeRetriever{}
	gen := &fakeGenerator{response: "Hi! How can I help?"}
	orch := newTestOrchestrator(t, ret, gen, &fakeRecorder{})

	out, err := orch.Chat(context.Background(), chatTurn("hello!"))
	require.NoError(t, err)
	require.Equal(t, 0, ret.calls)
	require.False(t, out.RagEnabled)
	require.Empty(t, out.Sources)
	require.NotContains(t, gen.lastPrompt, "Relevant platform content")
}

func TestChatRagDisabledByCaller(t *testing.T) {
	ret := &fakeRetriever{}
	orch := newTestOrchestrator(t, ret, &fakeGenerator{response: "ok"}, &fakeRecorder{})

	in := chatTurn("what does the machine learning course cover?")
	in.EnableRAG = false
	out, err := orch.Chat(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 0, ret.calls)
	require.False(t, out.RagEnabled)
}

func TestChatDegradesWhenRetrievalFails(t *testing.T) {
	ret := &fakeRetriever{err: fmt.Errorf("%w: match embeddings: timeout", appErr.ErrStore)}
	gen := &fakeGenerator{response: "Here is a general answer."}
	rec := &fakeRecorder{}
	orch := newTestOrchestrator(t, ret, gen, rec)

	out, err := orch.Chat(context.Background(), chatTurn("what does the machine learning course cover?"))
	require.NoError(t, err)
	require.Equal(t, gen.response, out.Response)
	require.True(t, out.Degraded)
	require.Equal(t, "store_unreachable", out.DegradedReason)
	require.False(t, out.RagEnabled)
	require.Empty(t, out.Sources)
	require.NotContains(t, gen.lastPrompt, "Relevant platform content")

	require.Len(t, rec.turns, 1)
	require.True(t, rec.turns[0].Degraded)
}

func TestChatGenerationFailureIsTerminal(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	rec := &fakeRecorder{}
	orch := newTestOrchestrator(t, &fakeRetriever{}, gen, rec)

	out, err := orch.Chat(context.Background(), chatTurn("hello!"))
	require.ErrorIs(t, err, appErr.ErrProvider)
	require.Equal(t, generationFallbackMessage, out.Response)
	require.NotEmpty(t, out.AnalyticsID)
	require.True(t, out.Degraded)
	require.Equal(t, "generation_failed", out.DegradedReason)

	require.Len(t, rec.turns, 1)
	require.True(t, rec.turns[0].Degraded)
	require.Equal(t, "generation_failed", rec.turns[0].DegradedReason)
}

func TestChatRequiresUserMessage(t *testing.T) {
	orch := newTestOrchestrator(t, &fakeRetriever{}, &fakeGenerator{}, &fakeRecorder{})

	_, err := orch.Chat(context.Background(), ChatInput{
		Messages: []model.ChatMessage{{Role: model.ChatRoleAssistant, Content: "hi"}},
	})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = orch.Chat(context.Background(), ChatInput{
		Messages: []model.ChatMessage{{Role: model.ChatRoleUser, Content: "   "}},
	})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
