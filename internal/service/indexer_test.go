package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clavisedu/ragline/internal/config"
	"github.com/clavisedu/ragline/internal/model"
	appErr "github.com/clavisedu/ragline/internal/pkg/errors"
	"github.com/clavisedu/ragline/internal/repo"
)

type fakeEmbedStore struct {
	records   map[string]*model.EmbeddingRecord
	upsertErr error
}

func newFakeEmbedStore() *fakeEmbedStore {
	return &fakeEmbedStore{records: map[string]*model.EmbeddingRecord{}}
}

func storeKey(ct model.ContentType, id string) string {
	return string(ct) + ":" + id
}

func (f *fakeEmbedStore) Exists(_ context.Context, ct model.ContentType, id string) (bool, error) {
	_, ok := f.records[storeKey(ct, id)]
	return ok, nil
}

func (f *fakeEmbedStore) Upsert(_ context.Context, rec *model.EmbeddingRecord) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records[storeKey(rec.ContentType, rec.ContentID)] = rec
	return nil
}

func (f *fakeEmbedStore) Delete(_ context.Context, ct model.ContentType, id string) error {
	delete(f.records, storeKey(ct, id))
	return nil
}

type fakeQueue struct {
	entries   []model.QueueEntry
	snapshots map[int64]repo.QueueSnapshot
	nextID    int64
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{snapshots: map[int64]repo.QueueSnapshot{}}
}

func (f *fakeQueue) Enqueue(_ context.Context, ct model.ContentType, id string, reason model.QueueReason, snap repo.QueueSnapshot) (int64, error) {
	f.nextID++
	f.entries = append(f.entries, model.QueueEntry{
		ID:          f.nextID,
		ContentType: ct,
		ContentID:   id,
		Reason:      reason,
	})
	f.snapshots[f.nextID] = snap
	return f.nextID, nil
}

func (f *fakeQueue) ListPending(_ context.Context, limit int, maxAttempts int) ([]model.QueueEntry, error) {
	var out []model.QueueEntry
	for _, e := range f.entries {
		if e.ProcessedAt != 0 || e.Attempts >= maxAttempts {
			continue
		}
		out = append(out, e)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeQueue) GetSnapshot(_ context.Context, id int64) (repo.QueueSnapshot, error) {
	return f.snapshots[id], nil
}

func (f *fakeQueue) MarkProcessed(_ context.Context, id int64) error {
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].ProcessedAt = 1
		}
	}
	return nil
}

func (f *fakeQueue) BumpAttempts(_ context.Context, id int64) error {
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Attempts++
		}
	}
	return nil
}

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, text string, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{float32(len(text)), 1, 2}, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embed" }

type fakeSource struct {
	items map[string]ContentItem
	err   error
}

func (f *fakeSource) Fetch(_ context.Context, ct model.ContentType, id string) (ContentItem, error) {
	if f.err != nil {
		return ContentItem{}, f.err
	}
	item, ok := f.items[storeKey(ct, id)]
	if !ok {
		return ContentItem{}, appErr.ErrNotFound
	}
	return item, nil
}

func testIndexerConfig() config.IndexerConfig {
	return config.IndexerConfig{
		MaxEmbedChars: 8000,
		CallDelayMS:   0,
		MaxAttempts:   3,
		DrainBatch:    50,
	}
}

func newTestIndexer(store *fakeEmbedStore, queue *fakeQueue, embedder *fakeEmbedder, source ContentSource) *Indexer {
	return NewIndexer(store, queue, embedder, source, nil, testIndexerConfig())
}

func TestIndexCreateThenSkipThenForce(t *testing.T) {
	store := newFakeEmbedStore()
	embedder := &fakeEmbedder{}
	idx := newTestIndexer(store, newFakeQueue(), embedder, nil)
	ctx := context.Background()

	in := IndexInput{
		ContentType: model.ContentTypeFAQ,
		ContentID:   "faq-1",
		Title:       "Resetting your password",
		Body:        "Go to settings and click reset.",
	}
	outcome, err := idx.Index(ctx, in)
	require.NoError(t, err)
	require.Equal(t, IndexOutcomeCreated, outcome)
	require.Equal(t, 1, embedder.calls)

	// Same key again without force pays no provider call.
	outcome, err = idx.Index(ctx, in)
	require.NoError(t, err)
	require.Equal(t, IndexOutcomeSkipped, outcome)
	require.Equal(t, 1, embedder.calls)

	in.ForceRefresh = true
	outcome, err = idx.Index(ctx, in)
	require.NoError(t, err)
	require.Equal(t, IndexOutcomeUpdated, outcome)
	require.Equal(t, 2, embedder.calls)
	require.Len(t, store.records, 1)
}

func TestIndexRejectsInvalidInput(t *testing.T) {
	idx := newTestIndexer(newFakeEmbedStore(), newFakeQueue(), &fakeEmbedder{}, nil)
	ctx := context.Background()

	_, err := idx.Index(ctx, IndexInput{ContentType: "bogus", ContentID: "x", Body: "text"})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = idx.Index(ctx, IndexInput{ContentType: model.ContentTypeFAQ, ContentID: " ", Body: "text"})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = idx.Index(ctx, IndexInput{ContentType: model.ContentTypeFAQ, ContentID: "x", Body: "   \n\n  "})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestIndexWrapsProviderFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
	idx := newTestIndexer(newFakeEmbedStore(), newFakeQueue(), embedder, nil)

	_, err := idx.Index(context.Background(), IndexInput{
		ContentType: model.ContentTypeCourse,
		ContentID:   "c-1",
		Body:        "course body",
	})
	require.ErrorIs(t, err, appErr.ErrProvider)
}

func TestDrainProcessesFromSnapshotWhenNoSource(t *testing.T) {
	store := newFakeEmbedStore()
	queue := newFakeQueue()
	idx := newTestIndexer(store, queue, &fakeEmbedder{}, nil)
	ctx := context.Background()

	_, err := idx.Enqueue(ctx, model.ContentTypeFAQ, "faq-1", model.QueueReasonCreated, "Title", "Snapshot body")
	require.NoError(t, err)

	report, err := idx.DrainQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, DrainReport{Processed: 1, Succeeded: 1}, report)
	require.Len(t, store.records, 1)

	pending, err := queue.ListPending(ctx, 10, 3)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestDrainDeletesWhenSourceReportsGone(t *testing.T) {
	store := newFakeEmbedStore()
	store.records[storeKey(model.ContentTypeCourse, "c-1")] = &model.EmbeddingRecord{}
	queue := newFakeQueue()
	source := &fakeSource{items: map[string]ContentItem{}}
	idx := newTestIndexer(store, queue, &fakeEmbedder{}, source)
	ctx := context.Background()

	_, err := idx.Enqueue(ctx, model.ContentTypeCourse, "c-1", model.QueueReasonUpdated, "", "")
	require.NoError(t, err)

	report, err := idx.DrainQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
	require.Empty(t, store.records)
}

func TestDrainLeavesFailedEntryPendingUntilPoisoned(t *testing.T) {
	store := newFakeEmbedStore()
	queue := newFakeQueue()
	embedder := &fakeEmbedder{err: fmt.Errorf("provider down")}
	idx := newTestIndexer(store, queue, embedder, nil)
	ctx := context.Background()

	_, err := idx.Enqueue(ctx, model.ContentTypeFAQ, "faq-1", model.QueueReasonManual, "Title", "Body")
	require.NoError(t, err)

	// MaxAttempts is 3: two failing drains leave it pending, the third
	// poisons it out of the pending set.
	for i := 0; i < 2; i++ {
		report, err := idx.DrainQueue(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Failed)
		require.Equal(t, 0, report.Poisoned)
	}
	report, err := idx.DrainQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.Poisoned)

	pending, err := queue.ListPending(ctx, 10, 3)
	require.NoError(t, err)
	require.Empty(t, pending)

	// Nothing was ever written.
	require.Empty(t, store.records)
}

func TestDrainRecoversViaSnapshotOnSourceError(t *testing.T) {
	store := newFakeEmbedStore()
	queue := newFakeQueue()
	source := &fakeSource{err: errors.New("platform api down")}
	idx := newTestIndexer(store, queue, &fakeEmbedder{}, source)
	ctx := context.Background()

	_, err := idx.Enqueue(ctx, model.ContentTypeBlogPost, "b-1", model.QueueReasonCreated, "Post", "Post body")
	require.NoError(t, err)

	report, err := idx.DrainQueue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.Len(t, store.records, 1)
}

func TestEnqueueRejectsInvalidReason(t *testing.T) {
	idx := newTestIndexer(newFakeEmbedStore(), newFakeQueue(), &fakeEmbedder{}, nil)
	_, err := idx.Enqueue(context.Background(), model.ContentTypeFAQ, "faq-1", "whenever", "", "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
