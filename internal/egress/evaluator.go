// Package egress gates which upstream hosts the gateway may dial and
// with which TLS posture. Policies are Rego modules evaluated through
// OPA; a registry entry that the policy denies is never built, so a
// misconfigured legacy-TLS endpoint cannot reach the network.
package egress

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"

	"github.com/eirenox/kdata-gateway/internal/config"
)

// Input is the document sent to OPA for each endpoint decision.
type Input struct {
	Endpoint string   `json:"endpoint"`
	Host     string   `json:"host"`
	TLS      InputTLS `json:"tls"`
}

// InputTLS describes the negotiated policy for the endpoint, using the
// operator-facing names from endpoints.yaml.
type InputTLS struct {
	MinVersion string   `json:"min_version"`
	MaxVersion string   `json:"max_version"`
	Ciphers    []string `json:"ciphers"`
	SNI        bool     `json:"sni"`
}

// Evaluator holds a compiled Rego query. Safe for concurrent use;
// Load may be called again on config reload.
type Evaluator struct {
	mu       sync.RWMutex
	prepared *rego.PreparedEvalQuery
	cfg      func() config.EgressConfig
}

// NewEvaluator creates an egress evaluator. Call Load to compile policies.
func NewEvaluator(cfg func() config.EgressConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// Enabled reports whether egress gating is turned on in config.
func (e *Evaluator) Enabled() bool { return e.cfg().Enabled }

// Load compiles Rego modules from the configured bundle path.
func (e *Evaluator) Load() error {
	cfg := e.cfg()
	modules, err := LoadRegoFiles(cfg.BundlePath)
	if err != nil {
		return fmt.Errorf("load rego files: %w", err)
	}
	if len(modules) == 0 {
		slog.Warn("no rego files found", "path", cfg.BundlePath)
		return nil
	}
	if err := e.LoadFromModules(modules); err != nil {
		return err
	}
	slog.Info("egress policies loaded", "modules", len(modules))
	return nil
}

// LoadFromModules compiles policies from provided module sources (useful for testing).
func (e *Evaluator) LoadFromModules(modules map[string]string) error {
	r := rego.New(
		rego.Query("[data.kdata.egress.allow, data.kdata.egress.reason]"),
		func() func(*rego.Rego) {
			mods := make([]func(*rego.Rego), 0, len(modules))
			for name, src := range modules {
				mods = append(mods, rego.Module(name, src))
			}
			return func(r *rego.Rego) {
				for _, m := range mods {
					m(r)
				}
			}
		}(),
	)

	prepared, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("prepare rego: %w", err)
	}

	e.mu.Lock()
	e.prepared = &prepared
	e.mu.Unlock()
	return nil
}

// Evaluate runs the egress policy against the given input. When gating
// is enabled but no policies are loaded the decision is deny.
func (e *Evaluator) Evaluate(ctx context.Context, input Input) (bool, string, error) {
	if !e.cfg().Enabled {
		return true, "", nil
	}

	e.mu.RLock()
	prepared := e.prepared
	e.mu.RUnlock()

	if prepared == nil {
		// No policies loaded while gating is on: fail closed.
		return false, "no policies loaded", nil
	}

	evalCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	results, err := prepared.Eval(evalCtx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Sprintf("policy evaluation error: %v", err), err
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, "no policy result", nil
	}

	// Result is [allow, reason]
	arr, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok || len(arr) < 2 {
		return false, "unexpected policy result format", nil
	}

	allowed, _ := arr[0].(bool)
	reason, _ := arr[1].(string)

	return allowed, reason, nil
}
