package results

import (
	"context"
	"time"
)

// Analysis is a persisted AI analysis result for a memo, keyed by the mode
// that produced it (summary, distill, action items).
type Analysis struct {
	MemoID    string    `json:"memo_id"`
	Mode      string    `json:"mode"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisRepository caches analysis results keyed by (memoID, mode).
type AnalysisRepository struct {
	*Repository[Analysis]
}

// NewAnalysisRepository wires an analysis repository over the record store.
func NewAnalysisRepository(store RecordStore, publish func(Change[Analysis])) *AnalysisRepository {
	return &AnalysisRepository{
		Repository: NewRepository[Analysis](store, "analysis", publish),
	}
}

func analysisKey(memoID, mode string) string {
	return memoID + "/" + mode
}

// Save persists a result under its memo and mode.
func (r *AnalysisRepository) Save(ctx context.Context, result Analysis) error {
	return r.Repository.Save(ctx, analysisKey(result.MemoID, result.Mode), result)
}

// Get returns the result for a memo and mode, nil when absent. An absent
// result never creates a cache entry.
func (r *AnalysisRepository) Get(ctx context.Context, memoID, mode string) (*Analysis, error) {
	value, found, err := r.Repository.Get(ctx, analysisKey(memoID, mode))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &value, nil
}

// Has reports whether a result exists for a memo and mode.
func (r *AnalysisRepository) Has(ctx context.Context, memoID, mode string) (bool, error) {
	return r.Repository.Has(ctx, analysisKey(memoID, mode))
}

// Delete removes the result for a memo and mode from both tiers.
func (r *AnalysisRepository) Delete(ctx context.Context, memoID, mode string) error {
	return r.Repository.Delete(ctx, analysisKey(memoID, mode))
}
