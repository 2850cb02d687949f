// Package generator draws quota-constrained random question samples into
// exam sessions.
package generator

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/examdesk/examdesk/internal/model"
	"github.com/examdesk/examdesk/internal/quota"
	"github.com/examdesk/examdesk/internal/store"
)

// ShortageError reports that a part's question pool cannot cover its quota.
type ShortageError struct {
	Part model.Part
	Want int
	Have int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("part %s: need %d questions, only %d available", e.Part, e.Want, e.Have)
}

// Generator assembles exam sessions. The RNG is injected so draws can be
// reproduced under a fixed seed.
type Generator struct {
	store *store.Store
	cfg   *quota.Config
	rng   *rand.Rand
}

func New(st *store.Store, cfg *quota.Config, rng *rand.Rand) *Generator {
	return &Generator{store: st, cfg: cfg, rng: rng}
}

// Generate draws a session for the candidate against the paper. For common
// papers the draw is restricted to questions linked to the paper and any
// shortage is fatal. For primary papers the pool is the full active pool for
// the part, narrowed to the effective trade when enough questions carry it.
// Nothing is persisted unless every part's quota can be met.
func (g *Generator) Generate(candidateID, paperID int64, trade string, shuffle bool) (*model.ExamSession, error) {
	paper, err := g.store.GetPaper(paperID)
	if err != nil {
		return nil, fmt.Errorf("get paper %d: %w", paperID, err)
	}
	cand, err := g.store.GetCandidate(candidateID)
	if err != nil {
		return nil, fmt.Errorf("get candidate %d: %w", candidateID, err)
	}
	if cand == nil {
		return nil, fmt.Errorf("candidate %d not found", candidateID)
	}

	effTrade := effectiveTrade(paper, trade)

	q, err := g.cfg.Resolve(paper.PartQuota, paper.IsCommon, effTrade)
	if err != nil {
		return nil, fmt.Errorf("resolve quota: %w", err)
	}

	var drawn []int64
	for _, code := range q.Parts() {
		want := q[code]
		if want == 0 {
			continue
		}
		part := model.Part(code)

		pool, err := g.poolFor(paper, part, effTrade, want)
		if err != nil {
			return nil, err
		}
		drawn = append(drawn, g.sample(pool, want, shuffle)...)
	}

	sess := model.ExamSession{
		PaperID:         paper.ID,
		CandidateID:     candidateID,
		Trade:           effTrade,
		StartedAt:       time.Now(),
		DurationMinutes: paper.DurationMinutes,
	}
	id, err := g.store.CreateSession(sess, drawn)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	created, err := g.store.GetSession(id)
	if err != nil {
		return nil, fmt.Errorf("get session %d: %w", id, err)
	}
	return &created, nil
}

// effectiveTrade derives the trade the draw runs under. Common papers carry
// no trade no matter what the caller passed.
func effectiveTrade(paper model.QuestionPaper, trade string) string {
	if paper.IsCommon {
		return ""
	}
	if paper.Trade != "" {
		return paper.Trade
	}
	return quota.NormalizeTrade(trade)
}

func (g *Generator) poolFor(paper model.QuestionPaper, part model.Part, trade string, want int) ([]model.Question, error) {
	if paper.IsCommon {
		pool, err := g.store.ListPaperQuestionsByPart(paper.ID, part)
		if err != nil {
			return nil, fmt.Errorf("list paper questions: %w", err)
		}
		if len(pool) < want {
			return nil, &ShortageError{Part: part, Want: want, Have: len(pool)}
		}
		return pool, nil
	}

	pool, err := g.store.ListActiveQuestionsByPart(part, trade)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(pool) < want && trade != "" {
		// Not enough trade-tagged questions; widen to the full part pool.
		pool, err = g.store.ListActiveQuestionsByPart(part, "")
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
	}
	if len(pool) < want {
		return nil, &ShortageError{Part: part, Want: want, Have: len(pool)}
	}
	return pool, nil
}

// sample picks want distinct questions. Without shuffle the picks keep their
// pool order; with shuffle their presentation order is randomized too.
func (g *Generator) sample(pool []model.Question, want int, shuffle bool) []int64 {
	picked := make([]model.Question, len(pool))
	copy(picked, pool)
	g.rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	picked = picked[:want]

	if !shuffle {
		sort.Slice(picked, func(i, j int) bool { return picked[i].ID < picked[j].ID })
	}

	ids := make([]int64, want)
	for i, q := range picked {
		ids[i] = q.ID
	}
	return ids
}
