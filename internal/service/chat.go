package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/clavisedu/ragline/internal/ai"
	"github.com/clavisedu/ragline/internal/knowledge"
	"github.com/clavisedu/ragline/internal/model"
	appErr "github.com/clavisedu/ragline/internal/pkg/errors"
)

const generationFallbackMessage = "Sorry, I couldn't put an answer together just now. Please try again in a moment."

type ChatInput struct {
	Messages  []model.ChatMessage
	Audience  model.Audience
	EnableRAG bool
}

type ChatOutput struct {
	Response       string
	RagEnabled     bool
	Sources        []model.SearchResult
	SourcesUsed    int
	SearchMS       int64
	TotalMS        int64
	AnalyticsID    string
	Degraded       bool
	DegradedReason string
}

// retriever and recorder are the orchestrator's view of its
// collaborators; the concrete SearchEngine and Analytics satisfy them.
type retriever interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]RetrievedPassage, error)
}

type recorder interface {
	RecordAsync(ctx context.Context, turn Turn) string
}

// ChatOrchestrator sequences one turn: classify, retrieve, assemble,
// generate, log. Retrieval trouble degrades to an ungrounded answer;
// only generation failure is terminal for the turn.
type ChatOrchestrator struct {
	classifier      *Classifier
	search          retriever
	knowledge       *knowledge.Assembler
	prompts         *PromptAssembler
	generator       ai.IGenerator
	analytics       recorder
	generateTimeout time.Duration
}

func NewChatOrchestrator(
	classifier *Classifier,
	search retriever,
	knowledgeAssembler *knowledge.Assembler,
	prompts *PromptAssembler,
	generator ai.IGenerator,
	analytics recorder,
	generateTimeout time.Duration,
) *ChatOrchestrator {
	return &ChatOrchestrator{
		classifier:      classifier,
		search:          search,
		knowledge:       knowledgeAssembler,
		prompts:         prompts,
		generator:       generator,
		analytics:       analytics,
		generateTimeout: generateTimeout,
	}
}

func (s *ChatOrchestrator) Chat(ctx context.Context, in ChatInput) (ChatOutput, error) {
	start := time.Now()
	query, history, err := splitConversation(in.Messages)
	if err != nil {
		return ChatOutput{}, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("query_hash", hashQuery(query)))

	cls := s.classifier.Classify(ctx, query, in.Audience)

	var passages []RetrievedPassage
	var searchMS int64
	degraded := false
	degradedReason := ""
	ragActive := in.EnableRAG && cls.UseRAG

	if ragActive {
		searchStart := time.Now()
		passages, err = s.search.Search(ctx, query, SearchOptions{ContentTypes: scopeContentTypes(cls.Scope)})
		searchMS = time.Since(searchStart).Milliseconds()
		if err != nil {
			// Store or provider trouble must not abort the turn; the
			// user still gets an ungrounded answer.
			degraded = true
			degradedReason = degradeReason(err)
			ragActive = false
			passages = nil
			logger.Warn("retrieval failed, degrading to ungrounded answer", zap.String("reason", degradedReason), zap.Error(err))
		}
	}

	assembleIn := AssembleInput{
		Tone:        cls.Tone,
		UserMessage: query,
		History:     history,
	}
	if ragActive {
		assembleIn.DomainFragment = s.knowledge.BuildContext(cls.Scope, in.Audience)
		assembleIn.Sources = passages
	}
	assembled := s.prompts.Assemble(assembleIn)

	genCtx := ctx
	if s.generateTimeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, s.generateTimeout)
		defer cancel()
	}
	response, genErr := s.generator.Generate(genCtx, assembled.Prompt)

	out := ChatOutput{
		RagEnabled:     ragActive,
		SearchMS:       searchMS,
		TotalMS:        time.Since(start).Milliseconds(),
		Degraded:       degraded,
		DegradedReason: degradedReason,
	}
	if ragActive {
		out.Sources = make([]model.SearchResult, 0, len(assembled.Included))
		for _, p := range assembled.Included {
			out.Sources = append(out.Sources, p.SearchResult)
		}
		out.SourcesUsed = len(out.Sources)
	}

	turn := Turn{
		QueryText:       query,
		Intent:          cls.Scope,
		Sources:         sourceRefs(assembled.Included),
		SearchLatencyMS: searchMS,
		Degraded:        degraded || genErr != nil,
		DegradedReason:  degradedReason,
	}

	if genErr != nil {
		out.Response = generationFallbackMessage
		out.Degraded = true
		out.DegradedReason = "generation_failed"
		turn.DegradedReason = "generation_failed"
		turn.TotalLatencyMS = time.Since(start).Milliseconds()
		out.AnalyticsID = s.analytics.RecordAsync(ctx, turn)
		logger.Error("generation failed", zap.Error(genErr))
		return out, fmt.Errorf("%w: generate: %v", appErr.ErrProvider, genErr)
	}

	out.Response = response
	out.TotalMS = time.Since(start).Milliseconds()
	turn.TotalLatencyMS = out.TotalMS
	out.AnalyticsID = s.analytics.RecordAsync(ctx, turn)
	return out, nil
}

// splitConversation pulls the latest user message out as the query and
// returns the rest as history.
func splitConversation(messages []model.ChatMessage) (string, []model.ChatMessage, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role != model.ChatRoleUser {
			continue
		}
		query := strings.TrimSpace(messages[i].Content)
		if query == "" {
			return "", nil, fmt.Errorf("%w: empty user message", appErr.ErrInvalid)
		}
		history := make([]model.ChatMessage, 0, i)
		history = append(history, messages[:i]...)
		return query, history, nil
	}
	return "", nil, fmt.Errorf("%w: conversation has no user message", appErr.ErrInvalid)
}

func scopeContentTypes(scope string) []model.ContentType {
	switch scope {
	case ScopeCourse:
		return []model.ContentType{model.ContentTypeCourse}
	case ScopeCurriculum:
		return []model.ContentType{model.ContentTypeCourse, model.ContentTypeKnowledgeBase}
	case ScopeSupport:
		return []model.ContentType{model.ContentTypeFAQ, model.ContentTypeKnowledgeBase}
	default:
		return nil
	}
}

func degradeReason(err error) string {
	switch {
	case appErr.IsProvider(err):
		return "embedding_provider_failed"
	case appErr.IsStore(err):
		return "store_unreachable"
	default:
		return "retrieval_failed"
	}
}

func sourceRefs(passages []RetrievedPassage) []model.SourceRef {
	refs := make([]model.SourceRef, 0, len(passages))
	for _, p := range passages {
		refs = append(refs, model.SourceRef{
			ContentType: p.ContentType,
			ContentID:   p.ContentID,
			Similarity:  p.RelevanceScore,
		})
	}
	return refs
}
