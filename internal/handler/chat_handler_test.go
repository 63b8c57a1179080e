package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi/proxyutil"

	"github.com/clavisedu/ragline/internal/config"
	"github.com/clavisedu/ragline/internal/knowledge"
	"github.com/clavisedu/ragline/internal/pkg/errcode"
	"github.com/clavisedu/ragline/internal/service"
)

type stubRetriever struct{}

func (s *stubRetriever) Search(ctx context.Context, query string, opts service.SearchOptions) ([]service.RetrievedPassage, error) {
	return nil, nil
}

type stubRecorder struct{}

func (s *stubRecorder) RecordAsync(ctx context.Context, turn service.Turn) string {
	return "rec-1"
}

type stubGenerator struct {
	reply string
	err   error
}

func (s *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return s.reply, s.err
}

func newChatTestEngine(t *testing.T, gen *stubGenerator) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	set, err := knowledge.Load("")
	require.NoError(t, err)
	chat := service.NewChatOrchestrator(
		service.NewClassifier(),
		&stubRetriever{},
		knowledge.NewAssembler(set, 2000),
		service.NewPromptAssembler(config.PromptConfig{MaxChars: 12000, HistoryTurns: 6, SourceChars: 1200}),
		gen,
		&stubRecorder{},
		0,
	)
	engine := gin.New()
	engine.POST("/chat", NewChatHandler(chat).Chat)
	return engine
}

func postChat(t *testing.T, engine *gin.Engine, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestChatHandlerRespondsWithAnswer(t *testing.T) {
	engine := newChatTestEngine(t, &stubGenerator{reply: "an answer"})
	rec := postChat(t, engine, `{"messages": [{"role": "user", "content": "what is a neural network?"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope proxyutil.CommonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, uint32(0), envelope.Code)
	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var out chatResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.Equal(t, "an answer", out.Response)
	require.NotEmpty(t, out.AnalyticsID)
}

func TestChatHandlerSurfacesFallbackOnGenerationFailure(t *testing.T) {
	engine := newChatTestEngine(t, &stubGenerator{err: context.DeadlineExceeded})
	rec := postChat(t, engine, `{"messages": [{"role": "user", "content": "what is a neural network?"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope proxyutil.CommonResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	require.Equal(t, uint32(errcode.ErrGenerationFailed), envelope.Code)
	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var out chatResponse
	require.NoError(t, json.Unmarshal(data, &out))
	require.NotEmpty(t, out.Response)
	require.True(t, out.Degraded)
	require.Equal(t, "generation_failed", out.DegradedReason)
	require.Equal(t, "rec-1", out.AnalyticsID)
}
