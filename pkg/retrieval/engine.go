package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/jarkius/agent-orchestra/pkg/store"
	"github.com/jarkius/agent-orchestra/pkg/vectoradapter"
	"golang.org/x/sync/errgroup"
)

// LearningsCollection is the vector adapter collection name. It is fixed
// here; pkg/config's LearningsCollection setting has the same default but
// is not read by this package.
const LearningsCollection = "learnings"

// Weights are the tunable fusion weights (spec §4.3.4, default 0.36/0.64).
type Weights struct {
	Vector  float64
	Keyword float64
}

// Engine is the hybrid retrieval orchestrator (spec §4.3, "main hard part").
type Engine struct {
	store    *store.Store
	vector   *vectoradapter.Adapter
	cache    *ResultCache
	log      *slog.Logger
	weights  Weights
	mmrLambda float64
	expandMax int
}

// NewEngine constructs an Engine over an already-opened Store and a
// (possibly nil, if the vector adapter is unavailable) vectoradapter.
func NewEngine(st *store.Store, vec *vectoradapter.Adapter, weights Weights, cacheTTL time.Duration, cacheCapacity int, mmrLambda float64, expandMax int) *Engine {
	return &Engine{
		store:     st,
		vector:    vec,
		cache:     NewResultCache(cacheTTL, cacheCapacity),
		log:       slog.With("component", "retrieval"),
		weights:   weights,
		mmrLambda: mmrLambda,
		expandMax: expandMax,
	}
}

// OnLearningChanged should be wired to store.RegisterLearningChangeHook so
// the result cache invalidates whenever a learning is created/updated
// (spec §4.3.4).
func (e *Engine) OnLearningChanged(_ int64) {
	e.cache.Clear()
}

// Scope carries the caller-side filters applied to every recall (spec
// §4.3.1, §4.3.7).
type Scope struct {
	AgentID     *int64
	ProjectPath string
	Shared      bool
}

// Recall dispatches a raw query per spec §4.3.1: recent / exact session /
// exact learning / hybrid search, enforcing access control on every path.
func (e *Engine) Recall(ctx context.Context, rawQuery string, limit int, scope Scope) ([]ScoredResult, error) {
	started := time.Now()
	c := Classify(rawQuery)

	var (
		results []ScoredResult
		source  string
		err     error
	)

	switch c.Type {
	case QueryRecent:
		results, err = e.recallRecent(ctx, scope)
		source = "recent"
	case QueryExactSession:
		results, err = e.recallExactSession(ctx, c.ID, scope)
		source = "exact_session"
	case QueryExactLearning:
		results, err = e.recallExactLearning(ctx, c, scope)
		source = "exact_learning"
	default:
		results, err = e.hybridSearch(ctx, rawQuery, limit, scope)
		source = "hybrid"
	}

	recordTelemetry(ctx, e.store, rawQuery, c.Type, len(results), started, source, scope.AgentID)
	return results, err
}

func (e *Engine) recallRecent(ctx context.Context, scope Scope) ([]ScoredResult, error) {
	sess, err := e.store.MostRecentSession(ctx, scope.AgentID, scope.ProjectPath)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !CanAccessSession(scope.AgentID, sess) {
		return nil, nil
	}
	return []ScoredResult{{ID: sess.ID, Score: 1.0}}, nil
}

func (e *Engine) recallExactSession(ctx context.Context, id string, scope Scope) ([]ScoredResult, error) {
	sess, err := e.store.GetSession(ctx, id)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !CanAccessSession(scope.AgentID, sess) {
		return nil, nil
	}
	return []ScoredResult{{ID: sess.ID, Score: 1.0}}, nil
}

func (e *Engine) recallExactLearning(ctx context.Context, c Classification, scope Scope) ([]ScoredResult, error) {
	id, ok := ParseLearningID(c)
	if !ok {
		return nil, nil
	}
	l, err := e.store.GetLearningByID(ctx, id)
	if err == store.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !CanAccessLearning(scope.AgentID, l) {
		return nil, nil
	}
	return []ScoredResult{{ID: c.ID, LearningID: l.ID, Score: 1.0, Category: l.Category}}, nil
}

// hybridSearch implements spec §4.3.2–§4.3.5: task-type category boost,
// optional query expansion, dense+sparse fusion run concurrently, MMR
// diversity rerank, all gated by the LRU result cache.
func (e *Engine) hybridSearch(ctx context.Context, query string, limit int, scope Scope) ([]ScoredResult, error) {
	agentKey := ""
	if scope.AgentID != nil {
		agentKey = strconv.FormatInt(*scope.AgentID, 10)
	}
	key := CacheKey{Query: query, Limit: limit, AgentID: agentKey, Shared: scope.Shared, ProjectPath: scope.ProjectPath}
	if cached, ok := e.cache.Get(key); ok {
		return cached, nil
	}

	taskType := DetectTaskType(query)
	boosts := CategoryBoosts(taskType)

	variants := []Variant{{Query: query, Weight: 1.0}}
	if e.expandMax > 0 {
		variants = Expand(query, e.expandMax)
	}

	perVariantVector := make([]map[string]float64, len(variants))
	perVariantKeyword := make([]map[string]float64, len(variants))
	perVariantCategory := map[string]string{}

	g, gctx := errgroup.WithContext(ctx)
	for i, v := range variants {
		i, v := i, v
		g.Go(func() error {
			vec, cat, err := e.denseSearch(gctx, v.Query, limit)
			if err != nil {
				e.log.Warn("dense search failed, degrading to sparse-only", "error", err)
				vec = map[string]float64{}
			}
			perVariantVector[i] = scaleMap(vec, v.Weight)
			for id, c := range cat {
				perVariantCategory[id] = c
			}
			return nil
		})
		g.Go(func() error {
			kw, err := e.sparseSearch(gctx, v.Query, limit)
			if err != nil {
				return err
			}
			perVariantKeyword[i] = scaleMap(kw, v.Weight)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	vectorScores := MergeExpanded(perVariantVector)
	keywordScores := MergeExpanded(perVariantKeyword)

	fused := e.fuse(ctx, vectorScores, keywordScores, perVariantCategory, boosts, scope)

	sort.Slice(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })

	reranked := RerankMMR(fused, limit, e.mmrLambda)
	if len(reranked) > limit {
		reranked = reranked[:limit]
	}

	e.cache.Put(key, reranked)
	return reranked, nil
}

func scaleMap(m map[string]float64, w float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v * w
	}
	return out
}

// denseSearch runs the vector leg of spec §4.3.4: query 2K candidates,
// dedup by parent id keeping the lowest distance, similarity = 1 - distance.
func (e *Engine) denseSearch(ctx context.Context, query string, limit int) (map[string]float64, map[string]string, error) {
	if e.vector == nil {
		return map[string]float64{}, map[string]string{}, nil
	}
	hits, err := e.vector.Query(ctx, LearningsCollection, query, limit*2, nil)
	if err != nil {
		return nil, nil, err
	}

	bestDistance := map[string]float32{}
	for _, h := range hits {
		parent := vectoradapter.ParentOf(h.ID)
		if d, ok := bestDistance[parent]; !ok || h.Distance < d {
			bestDistance[parent] = h.Distance
		}
	}
	scores := make(map[string]float64, len(bestDistance))
	for parent, dist := range bestDistance {
		scores[parent] = 1 - float64(dist)
	}
	return scores, map[string]string{}, nil
}

// sparseSearch runs the FTS leg of spec §4.3.4: rank position i of n
// converts to score 1 - i/n.
func (e *Engine) sparseSearch(ctx context.Context, query string, limit int) (map[string]float64, error) {
	hits, err := e.store.SearchLearningsFTS(ctx, query, limit*2)
	if err != nil {
		return nil, err
	}
	n := len(hits)
	scores := make(map[string]float64, n)
	for _, h := range hits {
		score := 1.0
		if n > 1 {
			score = 1 - float64(h.Rank)/float64(n)
		}
		id := learningKey(h.LearningID)
		if score > scores[id] {
			scores[id] = score
		}
	}
	return scores, nil
}

func learningKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseLearningKey(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// fuse combines vector+keyword scores (spec §4.3.4), applies the task-type
// category boost (§4.3.2) and access control (§4.3.7), and loads each
// surviving learning's category where it wasn't already known from a
// dense hit.
func (e *Engine) fuse(ctx context.Context, vectorScores, keywordScores map[string]float64, knownCategory map[string]string, boosts map[string]float64, scope Scope) []ScoredResult {
	ids := map[string]bool{}
	for id := range vectorScores {
		ids[id] = true
	}
	for id := range keywordScores {
		ids[id] = true
	}

	results := make([]ScoredResult, 0, len(ids))
	for id := range ids {
		learningID, ok := parseLearningKey(id)
		if !ok {
			continue
		}
		l, err := e.store.GetLearningByID(ctx, learningID)
		if err != nil || l == nil {
			continue
		}
		if !CanAccessLearning(scope.AgentID, l) {
			continue
		}
		if scope.ProjectPath != "" && l.ProjectPath != "" && l.ProjectPath != scope.ProjectPath {
			continue
		}

		vs := vectorScores[id]
		ks := keywordScores[id]
		score := e.weights.Vector*vs + e.weights.Keyword*ks
		score *= Boost(boosts, l.Category)

		results = append(results, ScoredResult{
			ID:           id,
			LearningID:   learningID,
			VectorScore:  vs,
			KeywordScore: ks,
			Score:        score,
			Category:     l.Category,
		})
	}
	return results
}
