package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clavisedu/ragline/internal/model"
	"github.com/clavisedu/ragline/internal/repo"
)

func semMatch(id string, similarity float64, seq int64) repo.SemanticMatch {
	return repo.SemanticMatch{
		ContentType: model.ContentTypeFAQ,
		ContentID:   id,
		Title:       "title " + id,
		Excerpt:     "excerpt " + id,
		Seq:         seq,
		Similarity:  similarity,
	}
}

func lexMatch(id string, rank float64, titleHit bool, seq int64) repo.LexicalMatch {
	return repo.LexicalMatch{
		ContentType: model.ContentTypeFAQ,
		ContentID:   id,
		Title:       "title " + id,
		Excerpt:     "excerpt " + id,
		Seq:         seq,
		Rank:        rank,
		TitleHit:    titleHit,
	}
}

func TestMergeCandidatesBlendNeverDemotes(t *testing.T) {
	// semantic 0.9 with a weak lexical 0.1 would blend to 0.66 at
	// weight 0.7; the stronger single signal must win instead.
	merged := mergeCandidates(
		[]repo.SemanticMatch{semMatch("a", 0.9, 1)},
		[]repo.LexicalMatch{lexMatch("a", 0.1, false, 1)},
		0.7, 0.3,
	)
	require.Len(t, merged, 1)
	require.Equal(t, 0.9, merged[0].passage.RelevanceScore)
	require.Equal(t, model.MatchTypeHybrid, merged[0].passage.MatchType)
}

func TestMergeCandidatesBlendLiftsAgreeingSignals(t *testing.T) {
	merged := mergeCandidates(
		[]repo.SemanticMatch{semMatch("a", 0.6, 1)},
		[]repo.LexicalMatch{lexMatch("a", 0.8, false, 1)},
		0.7, 0.3,
	)
	require.Len(t, merged, 1)
	// blend = 0.7*0.6 + 0.3*0.8 = 0.66; lexical 0.8 is stronger still.
	require.InDelta(t, 0.8, merged[0].passage.RelevanceScore, 1e-9)
}

func TestMergeCandidatesSingleSignalKeepsOwnScoreAndType(t *testing.T) {
	merged := mergeCandidates(
		[]repo.SemanticMatch{semMatch("sem", 0.75, 1)},
		[]repo.LexicalMatch{lexMatch("lex", 0.5, false, 2)},
		0.7, 0.3,
	)
	require.Len(t, merged, 2)
	byID := map[string]candidate{}
	for _, c := range merged {
		byID[c.passage.ContentID] = c
	}
	require.Equal(t, 0.75, byID["sem"].passage.RelevanceScore)
	require.Equal(t, model.MatchTypeSemantic, byID["sem"].passage.MatchType)
	require.Equal(t, 0.5, byID["lex"].passage.RelevanceScore)
	require.Equal(t, model.MatchTypeKeyword, byID["lex"].passage.MatchType)
}

func TestMergeCandidatesFloorsBeforeRanking(t *testing.T) {
	merged := mergeCandidates(
		[]repo.SemanticMatch{semMatch("keep", 0.5, 1), semMatch("drop", 0.2, 2)},
		nil,
		0.7, 0.3,
	)
	require.Len(t, merged, 1)
	require.Equal(t, "keep", merged[0].passage.ContentID)
}

func TestMergeCandidatesClampsToOne(t *testing.T) {
	merged := mergeCandidates(
		[]repo.SemanticMatch{semMatch("a", 1.2, 1)},
		nil,
		0.7, 0.3,
	)
	require.Len(t, merged, 1)
	require.Equal(t, 1.0, merged[0].passage.RelevanceScore)
}

func TestRankAndCutOrdersByScoreThenRecency(t *testing.T) {
	merged := mergeCandidates(
		[]repo.SemanticMatch{
			semMatch("old-high", 0.9, 10),
			semMatch("new-high", 0.9, 20),
			semMatch("low", 0.5, 30),
		},
		nil,
		0.7, 0.3,
	)
	results := rankAndCut(merged, 2)
	require.Len(t, results, 2)
	require.Equal(t, "new-high", results[0].ContentID)
	require.Equal(t, "old-high", results[1].ContentID)
}

func TestRankAndCutZeroLimitKeepsAll(t *testing.T) {
	merged := mergeCandidates(
		[]repo.SemanticMatch{semMatch("a", 0.9, 1), semMatch("b", 0.8, 2)},
		nil,
		0.7, 0.3,
	)
	require.Len(t, rankAndCut(merged, 0), 2)
}

func TestLexicalScoreTitleHitFloor(t *testing.T) {
	require.Equal(t, 0.8, lexicalScore(lexMatch("a", 0.1, true, 1)))
	require.Equal(t, 0.9, lexicalScore(lexMatch("a", 0.9, true, 1)))
	require.InDelta(t, 0.1, lexicalScore(lexMatch("a", 0.1, false, 1)), 1e-9)
	require.Equal(t, 1.0, lexicalScore(lexMatch("a", 1.5, false, 1)))
}
