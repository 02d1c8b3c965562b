// Package stakeholder implements an autonomous AI voter: it polls a
// DAO's active proposals, evaluates each one against a Rego policy, and
// casts the resulting vote through the governance API.
package stakeholder

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/microaidao/governance/pkg/domain"
)

//go:embed policy.rego
var defaultPolicy string

// DefaultPolicy returns the built-in voting policy source.
func DefaultPolicy() string { return defaultPolicy }

const decisionQuery = "data.stakeholder.vote.decision"

// Decision is a policy verdict on one proposal.
type Decision struct {
	Choice domain.VoteChoice `json:"choice"`
	Reason string            `json:"reason"`
}

// Engine evaluates proposals with an embedded OPA instance. The query is
// prepared once and reused across evaluations.
type Engine struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
}

// NewEngine compiles the given Rego module; an empty source selects the
// built-in policy.
func NewEngine(ctx context.Context, policySource string) (*Engine, error) {
	src := strings.TrimSpace(policySource)
	if src == "" {
		src = defaultPolicy
	}

	module, err := ast.ParseModuleWithOpts("stakeholder/policy.rego", src, ast.ParserOptions{RegoVersion: ast.RegoV1})
	if err != nil {
		return nil, fmt.Errorf("parse rego module: %w", err)
	}

	prepared, err := rego.New(
		rego.Query(decisionQuery),
		rego.ParsedModule(module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego module: %w", err)
	}

	return &Engine{prepared: &prepared}, nil
}

// Evaluate runs the policy over one proposal. The amount is the treasury
// transfer encoded in the execution payload, zero when absent.
func (e *Engine) Evaluate(ctx context.Context, proposal *domain.Proposal, amount uint64) (Decision, error) {
	input := map[string]any{
		"title":       proposal.Title,
		"description": proposal.Description,
		"type":        string(proposal.Type),
		"amount":      amount,
	}

	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	results, err := prepared.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("policy evaluation: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{}, errors.New("policy evaluation: empty result")
	}

	payload, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("policy evaluation: unexpected result type %T", results[0].Expressions[0].Value)
	}

	choiceText, _ := payload["choice"].(string)
	choice, err := domain.ParseVoteChoice(choiceText)
	if err != nil {
		return Decision{}, fmt.Errorf("policy evaluation: %w", err)
	}
	reason, _ := payload["reason"].(string)

	return Decision{Choice: choice, Reason: reason}, nil
}
