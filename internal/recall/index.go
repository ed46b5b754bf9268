// Package recall provides similarity-based retrieval of past turns, backed
// by chromem-go, an embedded pure-Go vector database.
package recall

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/chayanin-k/rapport/internal/transcript"
)

const collectionName = "chat_memory"

// Index stores every turn as an embedded point scoped to its session and
// retrieves the semantically nearest turns for a query vector.
//
// Points are additive: each upsert gets a fresh id and never overwrites a
// prior point for the same logical turn, so concurrent upserts commute.
type Index struct {
	db  *chromem.DB
	col *chromem.Collection
}

// New opens the index. With an empty path the index lives in memory only;
// otherwise chromem persists it under path. Collection bootstrap is
// idempotent and safe to run on every process start.
func New(path string) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if strings.TrimSpace(path) == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open recall db: %w", err)
		}
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("ensure collection %q: %w", collectionName, err)
	}

	return &Index{db: db, col: col}, nil
}

func (i *Index) Upsert(ctx context.Context, turn transcript.Turn, vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("upsert %s turn: empty vector", turn.Role)
	}

	doc := chromem.Document{
		ID:        uuid.NewString(),
		Content:   turn.Content,
		Embedding: vector,
		Metadata: map[string]string{
			"session_id": turn.SessionID,
			"role":       turn.Role,
			"timestamp":  strconv.FormatInt(turn.Timestamp.Unix(), 10),
		},
	}

	if err := i.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add recall point: %w", err)
	}
	return nil
}

// Search returns up to k turns nearest to the query vector under cosine
// similarity, filtered to the given session, most similar first.
func (i *Index) Search(ctx context.Context, sessionID string, vector []float32, k int) ([]transcript.Turn, error) {
	if k <= 0 {
		return nil, nil
	}

	where := map[string]string{"session_id": sessionID}

	// chromem rejects queries asking for more results than the collection
	// holds, so shrink the limit until the query fits.
	var results []chromem.Result
	for limit := k; limit >= 1; limit-- {
		var err error
		results, err = i.col.QueryEmbedding(ctx, vector, limit, where, nil)
		if err == nil {
			break
		}
		if isTooFewDocs(err) {
			if limit == 1 {
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("recall query: %w", err)
	}

	turns := make([]transcript.Turn, 0, len(results))
	for _, res := range results {
		ts, _ := strconv.ParseInt(res.Metadata["timestamp"], 10, 64)
		turns = append(turns, transcript.Turn{
			SessionID: res.Metadata["session_id"],
			Role:      res.Metadata["role"],
			Content:   res.Content,
			Timestamp: time.Unix(ts, 0).UTC(),
		})
	}
	return turns, nil
}

func isTooFewDocs(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nresults") || strings.Contains(msg, "fewer")
}
