// ABOUTME: Per-cube vector index backed by chromem-go
// ABOUTME: Maintains one embedded collection per cube for similarity search

package memory

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/2389/memos-gateway/internal/store"
)

// vectorIndex maintains one chromem collection per cube. chromem-go is a
// pure Go embedded vector database; we always provide embeddings ourselves,
// so collections are created without an embedding function.
type vectorIndex struct {
	db *chromem.DB
	mu sync.Mutex
}

// vectorHit is a single similarity search result
type vectorHit struct {
	ID    string
	Score float64
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{db: chromem.NewDB()}
}

func collectionName(cubeID string) string {
	return "cube_" + cubeID
}

// collection returns the cube's collection, creating it if needed
func (ix *vectorIndex) collection(cubeID string) (*chromem.Collection, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	col, err := ix.db.GetOrCreateCollection(collectionName(cubeID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("opening collection for cube %s: %w", cubeID, err)
	}
	return col, nil
}

// add indexes a memory record under its cube
func (ix *vectorIndex) add(ctx context.Context, mem *store.Memory, embedding []float32) error {
	col, err := ix.collection(mem.CubeID)
	if err != nil {
		return err
	}

	doc := chromem.Document{
		ID:        mem.ID,
		Content:   mem.Content,
		Embedding: embedding,
		Metadata: map[string]string{
			"user_id": mem.UserID,
			"cube_id": mem.CubeID,
		},
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("indexing memory %s: %w", mem.ID, err)
	}
	return nil
}

// search returns up to topK hits from the cube's collection, best first.
// chromem requires nResults <= collection size, so the limit is clamped.
func (ix *vectorIndex) search(ctx context.Context, cubeID string, embedding []float32, topK int) ([]vectorHit, error) {
	col, err := ix.collection(cubeID)
	if err != nil {
		return nil, err
	}

	if count := col.Count(); count < topK {
		topK = count
	}
	if topK == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying cube %s: %w", cubeID, err)
	}

	hits := make([]vectorHit, len(results))
	for i, r := range results {
		hits[i] = vectorHit{ID: r.ID, Score: float64(r.Similarity)}
	}
	return hits, nil
}

// remove deletes specific memories from a cube's collection
func (ix *vectorIndex) remove(ctx context.Context, cubeID string, ids ...string) error {
	col, err := ix.collection(cubeID)
	if err != nil {
		return err
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("removing from cube %s: %w", cubeID, err)
	}
	return nil
}

// dropCube discards a cube's entire collection
func (ix *vectorIndex) dropCube(cubeID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.db.DeleteCollection(collectionName(cubeID)); err != nil {
		return fmt.Errorf("dropping collection for cube %s: %w", cubeID, err)
	}
	return nil
}
