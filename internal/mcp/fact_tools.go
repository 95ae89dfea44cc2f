package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"irrigation-mcp-server/internal/mangle"
)

const (
	defaultReadLimit   = 25
	maxReadLimit       = 500
	defaultWaitTimeout = 2000 * time.Millisecond
	maxWaitTimeout     = 30 * time.Second
	awaitPollInterval  = 50 * time.Millisecond
)

type PushFactsTool struct {
	engine *mangle.Engine
}

func (t *PushFactsTool) Name() string { return "push-facts" }
func (t *PushFactsTool) Description() string {
	return `Push custom facts into the Mangle fact buffer.

WHEN TO USE:
- Record observations the advisors do not produce (manual watering, field notes)
- Seed facts for a rule submitted with submit-rule

Each fact: {predicate, args: [...], timestamp_ms?}. Facts without a predicate are skipped.

Example:
{"facts": [{"predicate": "manual_watering", "args": ["basil-1", 1.5]}]}

Returns: {accepted: N}`
}
func (t *PushFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"facts": map[string]interface{}{
				"type":        "array",
				"description": "Facts to add: [{predicate, args, timestamp_ms}]",
				"items":       map[string]interface{}{"type": "object"},
			},
		},
		"required": []string{"facts"},
	}
}
func (t *PushFactsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	raw, ok := args["facts"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("facts must be an array")
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("facts must not be empty")
	}

	now := time.Now()
	facts := make([]mangle.Fact, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		predicate := getStringArg(m, "predicate")
		if predicate == "" {
			continue
		}
		factArgs, _ := m["args"].([]interface{})
		ts := now
		if ms, ok := getFloatArg(m, "timestamp_ms"); ok && ms > 0 {
			ts = time.UnixMilli(int64(ms))
		}
		facts = append(facts, mangle.Fact{Predicate: predicate, Args: factArgs, Timestamp: ts})
	}

	if err := t.engine.AddFacts(ctx, facts); err != nil {
		return nil, err
	}
	return map[string]interface{}{"accepted": len(facts)}, nil
}

type ReadFactsTool struct {
	engine *mangle.Engine
}

func (t *ReadFactsTool) Name() string { return "read-facts" }
func (t *ReadFactsTool) Description() string {
	return `Read the most recent facts from the buffer, oldest first.

WHEN TO USE:
- See what the last advisories published
- Debug a rule that does not fire

Optionally filter by predicate. Default limit 25, max 500.

Returns: {count, facts: [{predicate, args, timestamp}]}`
}
func (t *ReadFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum facts to return (default 25)",
			},
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Only facts of this predicate",
			},
		},
	}
}
func (t *ReadFactsTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	limit := getIntArg(args, "limit", defaultReadLimit)
	if limit <= 0 {
		limit = defaultReadLimit
	}
	if limit > maxReadLimit {
		limit = maxReadLimit
	}

	var source []mangle.Fact
	if predicate := getStringArg(args, "predicate"); predicate != "" {
		source = t.engine.FactsByPredicate(predicate)
	} else {
		source = t.engine.Facts()
	}
	if len(source) > limit {
		source = source[len(source)-limit:]
	}

	return map[string]interface{}{
		"count": len(source),
		"facts": source,
	}, nil
}

type QueryFactsTool struct {
	engine *mangle.Engine
}

func (t *QueryFactsTool) Name() string { return "query-facts" }
func (t *QueryFactsTool) Description() string {
	return `Run a Mangle query against base and derived facts.

WHEN TO USE:
- Which plants need water today?      water_today(Plant).
- What anomalies does basil-1 have?   plant_anomaly("basil-1", Kind, Severity).
- Plants that need a look             attention_needed(Plant, Why).

Variables (capitalized) are bound in each result row. Anonymous wildcards "_" are
returned as _0, _1, ... The trailing period is optional.

Returns: {count, results: [{Var: value}]}`
}
func (t *QueryFactsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{
				"type":        "string",
				"description": "Single-atom Mangle query, e.g. water_today(P).",
			},
		},
		"required": []string{"query"},
	}
}
func (t *QueryFactsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query := strings.TrimSpace(getStringArg(args, "query"))
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if !strings.HasSuffix(query, ".") {
		query += "."
	}
	query = normalizeWildcards(query)

	rows, err := t.engine.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		results = append(results, map[string]interface{}(r))
	}
	return map[string]interface{}{
		"count":   len(results),
		"results": results,
	}, nil
}

// normalizeWildcards renames each anonymous "_" outside string literals to _0, _1, ...
// so it is reported in the bindings.
func normalizeWildcards(query string) string {
	var (
		b        strings.Builder
		inString bool
		next     int
	)
	isIdent := func(c byte) bool {
		return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
	}
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '"' && (i == 0 || query[i-1] != '\\'):
			inString = !inString
		case c == '_' && !inString:
			prevIdent := i > 0 && isIdent(query[i-1])
			nextIdent := i+1 < len(query) && isIdent(query[i+1])
			if !prevIdent && !nextIdent {
				fmt.Fprintf(&b, "_%d", next)
				next++
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

type SubmitRuleTool struct {
	engine *mangle.Engine
}

func (t *SubmitRuleTool) Name() string { return "submit-rule" }
func (t *SubmitRuleTool) Description() string {
	return `Add Mangle declarations and rules to the running program.

WHEN TO USE:
- Define your own view over advisory facts, e.g. plants skipped despite low confidence
- Combine pushed facts with plant_* facts

Example:
Decl urgent_plant(P).
urgent_plant(P) :- plant_priority(P, "urgent").

Rules are re-analyzed with the loaded schema and evaluated immediately.

Returns: {status: "ok"}`
}
func (t *SubmitRuleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"rule": map[string]interface{}{
				"type":        "string",
				"description": "Mangle source: Decl lines and clauses",
			},
		},
		"required": []string{"rule"},
	}
}
func (t *SubmitRuleTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	rule := strings.TrimSpace(getStringArg(args, "rule"))
	if rule == "" {
		return nil, fmt.Errorf("rule is required")
	}
	if err := t.engine.AddRule(rule); err != nil {
		return nil, err
	}
	return map[string]interface{}{"status": "ok"}, nil
}

type EvaluateRuleTool struct {
	engine *mangle.Engine
}

func (t *EvaluateRuleTool) Name() string { return "evaluate-rule" }
func (t *EvaluateRuleTool) Description() string {
	return `Evaluate the program and list every fact of a predicate.

WHEN TO USE:
- attention_needed, water_today, fungal_watch, drainage_check, advice_conflict,
  pipeline_failed: the derived views over published advisories
- Any predicate added with submit-rule

Returns: {predicate, count, facts: [...]}`
}
func (t *EvaluateRuleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate name, e.g. attention_needed",
			},
		},
		"required": []string{"predicate"},
	}
}
func (t *EvaluateRuleTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	predicate := getStringArg(args, "predicate")
	if predicate == "" {
		return nil, fmt.Errorf("predicate is required")
	}
	facts, err := t.engine.Evaluate(ctx, predicate)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"predicate": predicate,
		"count":     len(facts),
		"facts":     facts,
	}, nil
}

type QueryTemporalTool struct {
	engine *mangle.Engine
}

func (t *QueryTemporalTool) Name() string { return "query-temporal" }
func (t *QueryTemporalTool) Description() string {
	return `List facts of a predicate inside a time window.

WHEN TO USE:
- Advisories published since this morning
- Facts pushed in the last run

Bounds are unix milliseconds and exclusive; omit one for an open window.

Returns: {predicate, count, facts: [...]}`
}
func (t *QueryTemporalTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate name",
			},
			"after_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Only facts after this unix ms",
			},
			"before_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Only facts before this unix ms",
			},
		},
		"required": []string{"predicate"},
	}
}
func (t *QueryTemporalTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	predicate := getStringArg(args, "predicate")
	if predicate == "" {
		return nil, fmt.Errorf("predicate is required")
	}

	var after, before time.Time
	if ms := getIntArg(args, "after_ms", 0); ms > 0 {
		after = time.UnixMilli(int64(ms))
	}
	if ms := getIntArg(args, "before_ms", 0); ms > 0 {
		before = time.UnixMilli(int64(ms))
	}

	facts := t.engine.QueryTemporal(predicate, after, before)
	return map[string]interface{}{
		"predicate": predicate,
		"count":     len(facts),
		"facts":     facts,
	}, nil
}

type SubscribeRuleTool struct {
	engine *mangle.Engine
}

func (t *SubscribeRuleTool) Name() string { return "subscribe-rule" }
func (t *SubscribeRuleTool) Description() string {
	return `Block until a derived predicate holds after the next evaluation, or time out.

WHEN TO USE:
- Wait for attention_needed while another client runs advise-batch
- React to a rule you submitted

Default timeout 2000 ms, max 30000 ms.

Returns: {status: "triggered"|"timeout", predicate, facts?, timeout_ms}`
}
func (t *SubscribeRuleTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate to watch",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait (default 2000)",
			},
		},
		"required": []string{"predicate"},
	}
}
func (t *SubscribeRuleTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	predicate := getStringArg(args, "predicate")
	if predicate == "" {
		return nil, fmt.Errorf("predicate is required")
	}
	timeout := waitTimeout(args)

	ch := make(chan mangle.WatchEvent, 1)
	t.engine.Subscribe(predicate, ch)
	defer t.engine.Unsubscribe(predicate, ch)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-ch:
		return map[string]interface{}{
			"status":     "triggered",
			"predicate":  predicate,
			"facts":      ev.Facts,
			"timeout_ms": timeout.Milliseconds(),
		}, nil
	case <-timer.C:
		return map[string]interface{}{
			"status":     "timeout",
			"predicate":  predicate,
			"timeout_ms": timeout.Milliseconds(),
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type AwaitFactTool struct {
	engine *mangle.Engine
}

func (t *AwaitFactTool) Name() string { return "await-fact" }
func (t *AwaitFactTool) Description() string {
	return `Poll the fact buffer until a fact exists, or time out.

WHEN TO USE:
- Wait for plant_status("basil-1", _) after starting an advisory elsewhere
- Check a pushed fact landed

args match the leading arguments of the fact; omit them to match any fact of the predicate.

Returns: {status: "passed"|"timeout", predicate, timeout_ms}`
}
func (t *AwaitFactTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"predicate": map[string]interface{}{
				"type":        "string",
				"description": "Predicate to wait for",
			},
			"args": map[string]interface{}{
				"type":        "array",
				"description": "Leading args to match",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait (default 2000)",
			},
		},
		"required": []string{"predicate"},
	}
}
func (t *AwaitFactTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	predicate := getStringArg(args, "predicate")
	if predicate == "" {
		return nil, fmt.Errorf("predicate is required")
	}
	want, _ := args["args"].([]interface{})
	timeout := waitTimeout(args)

	passed, err := poll(ctx, timeout, func() bool {
		return matchFact(t.engine.FactsByPredicate(predicate), want)
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":     awaitStatus(passed),
		"predicate":  predicate,
		"timeout_ms": timeout.Milliseconds(),
	}, nil
}

type AwaitConditionsTool struct {
	engine *mangle.Engine
}

func (t *AwaitConditionsTool) Name() string { return "await-conditions" }
func (t *AwaitConditionsTool) Description() string {
	return `Poll until every condition has a matching fact, or time out.

Each condition: {predicate, args?}. Conditions without a predicate are ignored;
at least one must be valid.

Returns: {status: "passed"|"timeout", conditions: N, timeout_ms}`
}
func (t *AwaitConditionsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"conditions": map[string]interface{}{
				"type":        "array",
				"description": "Conditions: [{predicate, args}]",
				"items":       map[string]interface{}{"type": "object"},
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "How long to wait (default 2000)",
			},
		},
		"required": []string{"conditions"},
	}
}
func (t *AwaitConditionsTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	raw, ok := args["conditions"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("conditions must be an array")
	}

	conds := make([]mangle.Fact, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		predicate := getStringArg(m, "predicate")
		if predicate == "" {
			continue
		}
		condArgs, _ := m["args"].([]interface{})
		conds = append(conds, mangle.Fact{Predicate: predicate, Args: condArgs})
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("at least one condition with a predicate is required")
	}
	timeout := waitTimeout(args)

	passed, err := poll(ctx, timeout, func() bool {
		return t.engine.MatchesAll(conds)
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"status":     awaitStatus(passed),
		"conditions": len(conds),
		"timeout_ms": timeout.Milliseconds(),
	}, nil
}

func waitTimeout(args map[string]interface{}) time.Duration {
	ms := getIntArg(args, "timeout_ms", 0)
	if ms <= 0 {
		return defaultWaitTimeout
	}
	d := time.Duration(ms) * time.Millisecond
	if d > maxWaitTimeout {
		return maxWaitTimeout
	}
	return d
}

// poll checks cond immediately and then every awaitPollInterval until it holds,
// the timeout passes or ctx is done.
func poll(ctx context.Context, timeout time.Duration, cond func() bool) (bool, error) {
	if cond() {
		return true, nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(awaitPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-deadline.C:
			return cond(), nil
		case <-ticker.C:
			if cond() {
				return true, nil
			}
		}
	}
}

func awaitStatus(passed bool) string {
	if passed {
		return "passed"
	}
	return "timeout"
}
