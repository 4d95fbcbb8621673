package intent

import (
	"context"

	"golang.org/x/sync/errgroup"

	"dialog-manager/internal/conversation"
	"dialog-manager/internal/models"
)

type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

// Options tunes one resolution.
type Options struct {
	TopK         int
	MaxDepth     int
	HistoryTurns int
}

// Outcome is the decision of one resolution. The resolver never mutates the
// conversation; the caller applies the outcome once the turn is decided.
type Outcome struct {
	State      conversation.ResolutionState
	Intent     *models.Intent
	Confused   []models.Intent
	NotFound   bool
	Reused     bool
	NewEpisode bool
}

// Resolver drives the resolution state machine:
//
//	unresolved -> resolving_layer -> (resolving_layer)* -> resolved_leaf
//	resolving_layer -> confused_pending_confirmation
//	confused_pending_confirmation -> resolved_leaf | resolving_layer
type Resolver struct {
	tree      *Tree
	oracle    Oracle
	retriever Retriever
	opts      Options
	logger    Logger
}

// NewResolver wires the resolver. retriever may be nil, in which case only
// the oracle classifies.
func NewResolver(tree *Tree, oracle Oracle, retriever Retriever, opts Options, log Logger) *Resolver {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 8
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 6
	}
	return &Resolver{tree: tree, oracle: oracle, retriever: retriever, opts: opts, logger: log}
}

func (r *Resolver) Tree() *Tree {
	return r.tree
}

func (r *Resolver) Resolve(ctx context.Context, conv *conversation.Context) (*Outcome, error) {
	history := conv.History.Last(r.opts.HistoryTurns)
	previous := conv.CurrentIntent

	if conv.IsConfused() {
		choice, err := r.oracle.ConfirmCheck(ctx, conv.CurrentUserInput, conv.ConfusedIntents, history)
		if err != nil {
			return nil, err
		}
		if choice != "" && r.tree.Contains(choice) {
			r.logger.Debug("confusion resolved", map[string]interface{}{"intent": choice})
			if r.tree.IsLeaf(choice) {
				return r.resolved(models.NewIntent(choice, 1), previous), nil
			}
			return r.drill(ctx, conv, choice, history, previous)
		}
		r.logger.Debug("confirmation declined, resolving from root", nil)
		return r.drill(ctx, conv, models.RootIntent, history, previous)
	}

	if previous != nil && conv.ResolutionState == conversation.StateResolvedLeaf {
		same, err := r.oracle.SameTopic(ctx, conv.CurrentUserInput, *previous, history)
		switch {
		case err != nil:
			r.logger.Warn("same-topic check failed, classifying", map[string]interface{}{"error": err.Error()})
		case same:
			return &Outcome{
				State:  conversation.StateResolvedLeaf,
				Intent: previous.Clone(),
				Reused: true,
			}, nil
		}
	}

	return r.drill(ctx, conv, models.RootIntent, history, previous)
}

func (r *Resolver) drill(ctx context.Context, conv *conversation.Context, start string, history []models.HistoryEntry, previous *models.Intent) (*Outcome, error) {
	current := start
	confidence := 1.0

	for depth := 0; depth < r.opts.MaxDepth; depth++ {
		children := r.tree.Children(current)
		if len(children) == 0 {
			break
		}
		step, err := r.resolveLayer(ctx, conv.CurrentUserInput, current, children, history)
		if err != nil {
			return nil, err
		}
		if len(step.confused) > 0 {
			r.logger.Info("intent classification disagrees with examples", map[string]interface{}{
				"layer":      current,
				"candidates": []string{step.confused[0].Name, step.confused[1].Name},
			})
			return &Outcome{State: conversation.StateConfused, Confused: step.confused}, nil
		}
		if step.choice == "" {
			return r.notFound(current), nil
		}
		current, confidence = step.choice, step.confidence
	}

	if current == models.RootIntent || !r.tree.IsLeaf(current) {
		return r.notFound(current), nil
	}
	return r.resolved(models.NewIntent(current, confidence), previous), nil
}

func (r *Resolver) resolved(in *models.Intent, previous *models.Intent) *Outcome {
	if node, ok := r.tree.Get(in.Name); ok {
		in.Description = node.Description
	}
	return &Outcome{
		State:      conversation.StateResolvedLeaf,
		Intent:     in,
		NewEpisode: previous == nil || previous.Name != in.Name,
	}
}

func (r *Resolver) notFound(layer string) *Outcome {
	r.logger.Info("no intent matched", map[string]interface{}{"layer": layer})
	return &Outcome{State: conversation.StateUnresolved, NotFound: true}
}

type layerStep struct {
	choice     string
	confidence float64
	confused   []models.Intent
}

// resolveLayer picks one child of parent. Retrieval and classification run
// concurrently; a retrieval failure only removes the example signal.
func (r *Resolver) resolveLayer(ctx context.Context, utterance, parent string, children []models.Intent, history []models.HistoryEntry) (*layerStep, error) {
	var (
		examples []Example
		cls      *Classification
		clsErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	if r.retriever != nil {
		g.Go(func() error {
			found, err := r.retriever.Retrieve(gctx, utterance, parent, r.opts.TopK)
			if err != nil {
				r.logger.Warn("example retrieval failed", map[string]interface{}{"layer": parent, "error": err.Error()})
				return nil
			}
			examples = found
			return nil
		})
	}
	g.Go(func() error {
		cls, clsErr = r.oracle.Classify(gctx, ClassifyRequest{
			Utterance:  utterance,
			Parent:     parent,
			Candidates: children,
			History:    history,
		})
		return nil
	})
	_ = g.Wait()

	strong, agreement := r.unanimousChild(parent, examples)

	if clsErr != nil {
		if strong == "" {
			return nil, clsErr
		}
		r.logger.Warn("classification failed, using examples", map[string]interface{}{"layer": parent, "error": clsErr.Error()})
		return &layerStep{choice: strong, confidence: agreement}, nil
	}

	llmPick := ""
	if cls != nil && cls.Intent != "" {
		if child, ok := r.childOf(parent, cls.Intent); ok {
			llmPick = child
		}
	}

	switch {
	case llmPick != "" && strong != "" && llmPick != strong:
		return &layerStep{confused: []models.Intent{
			r.candidate(strong, agreement),
			r.candidate(llmPick, cls.Confidence),
		}}, nil
	case llmPick != "":
		return &layerStep{choice: llmPick, confidence: clamp(cls.Confidence)}, nil
	case strong != "":
		return &layerStep{choice: strong, confidence: agreement}, nil
	}
	return &layerStep{}, nil
}

// unanimousChild returns the child every mappable example points to, with
// the share of all examples that agree on it.
func (r *Resolver) unanimousChild(parent string, examples []Example) (string, float64) {
	if len(examples) == 0 {
		return "", 0
	}
	choice := ""
	votes := 0
	for _, ex := range examples {
		child, ok := r.childOf(parent, ex.Intent)
		if !ok {
			continue
		}
		if choice != "" && child != choice {
			return "", 0
		}
		choice = child
		votes++
	}
	if choice == "" {
		return "", 0
	}
	return choice, float64(votes) / float64(len(examples))
}

func (r *Resolver) childOf(parent, name string) (string, bool) {
	return r.tree.ChildToward(parent, name)
}

func (r *Resolver) candidate(name string, confidence float64) models.Intent {
	in, _ := r.tree.Get(name)
	in.SetConfidence(clamp(confidence))
	return in
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
