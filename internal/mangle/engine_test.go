package mangle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"irrigation-mcp-server/internal/config"
)

const schemaPath = "../../schemas/irrigation.mg"

func newTestEngine(t *testing.T, limit int) *Engine {
	t.Helper()
	engine, err := NewEngine(config.MangleConfig{
		Enable:          true,
		SchemaPath:      schemaPath,
		FactBufferLimit: limit,
	})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return engine
}

func TestEngineLoadSchema(t *testing.T) {
	engine := newTestEngine(t, 1000)
	if !engine.Ready() {
		t.Fatal("Engine not ready after schema load")
	}
}

func TestEngineLoadSchemaError(t *testing.T) {
	_, err := NewEngine(config.MangleConfig{
		Enable:          true,
		SchemaPath:      "/nonexistent/path/schema.mg",
		FactBufferLimit: 1000,
	})
	if err == nil {
		t.Error("Expected error for nonexistent schema path")
	}
}

func TestEngineAddFacts(t *testing.T) {
	engine := newTestEngine(t, 1000)

	ctx := context.Background()
	facts := []Fact{
		{Predicate: PredDecision, Args: []interface{}{"tomato-1", "irrigate_today", 0.667}, Timestamp: time.Now()},
		{Predicate: PredPriority, Args: []interface{}{"tomato-1", "medium"}, Timestamp: time.Now()},
		{Predicate: PredAnomaly, Args: []interface{}{"tomato-1", "low_soil_moisture", "critical"}, Timestamp: time.Now()},
	}

	if err := engine.AddFacts(ctx, facts); err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	if buffered := engine.Facts(); len(buffered) != len(facts) {
		t.Errorf("Expected %d facts in buffer, got %d", len(facts), len(buffered))
	}
	if got := engine.FactsByPredicate(PredAnomaly); len(got) != 1 {
		t.Errorf("Expected 1 plant_anomaly, got %d", len(got))
	}
	if got := engine.FactsByPredicate("missing"); len(got) != 0 {
		t.Errorf("Expected no facts for unknown predicate, got %d", len(got))
	}
}

func TestEngineAddFactsCancelled(t *testing.T) {
	engine := newTestEngine(t, 1000)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := engine.AddFacts(ctx, []Fact{{Predicate: PredStatus, Args: []interface{}{"p", "success"}}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestEngineQuery(t *testing.T) {
	engine := newTestEngine(t, 1000)
	ctx := context.Background()

	_ = engine.AddFacts(ctx, []Fact{
		{Predicate: PredPriority, Args: []interface{}{"tomato-1", "urgent"}, Timestamp: time.Now()},
		{Predicate: PredPriority, Args: []interface{}{"vine-1", "low"}, Timestamp: time.Now()},
	})

	t.Run("variables", func(t *testing.T) {
		results, err := engine.Query(ctx, "plant_priority(P, Level).")
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(results) != 2 {
			t.Errorf("Expected 2 results, got %d", len(results))
		}
	})

	t.Run("constant filter", func(t *testing.T) {
		results, err := engine.Query(ctx, `plant_priority(P, "urgent").`)
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(results) != 1 || results[0]["P"] != "tomato-1" {
			t.Errorf("Expected tomato-1, got %v", results)
		}
	})

	t.Run("derived view", func(t *testing.T) {
		results, err := engine.Query(ctx, "attention_needed(P).")
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}
		if len(results) != 1 || results[0]["P"] != "tomato-1" {
			t.Errorf("Expected tomato-1 to need attention, got %v", results)
		}
	})

	t.Run("parse error", func(t *testing.T) {
		if _, err := engine.Query(ctx, "invalid syntax $$"); err == nil {
			t.Error("Expected parse error for invalid query syntax")
		}
	})
}

func TestEngineQueryBufferDirect(t *testing.T) {
	engine := newTestEngine(t, 1000)
	ctx := context.Background()

	_ = engine.AddFacts(ctx, []Fact{
		{Predicate: "sensor_note", Args: []interface{}{"tomato-1", "leaf curl"}, Timestamp: time.Now()},
		{Predicate: "sensor_note", Args: []interface{}{"vine-1", "ok"}, Timestamp: time.Now()},
	})

	engine.mu.RLock()
	defer engine.mu.RUnlock()

	results := engine.queryBufferDirect("sensor_note", nil)
	if len(results) != 2 {
		t.Errorf("Expected 2 matches for an empty pattern, got %d", len(results))
	}
}

func TestEngineNotReady(t *testing.T) {
	engine, err := NewEngine(config.MangleConfig{Enable: true, FactBufferLimit: 1000})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx := context.Background()
	if _, err := engine.Query(ctx, "water_today(P)."); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady from Query, got %v", err)
	}
	if _, err := engine.Evaluate(ctx, "water_today"); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady from Evaluate, got %v", err)
	}
	if engine.Ready() {
		t.Error("Expected enabled engine without schema to be not ready")
	}
}

func TestEngineDisabled(t *testing.T) {
	engine, err := NewEngine(config.MangleConfig{Enable: false, FactBufferLimit: 1000})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	ctx := context.Background()
	if err := engine.AddFacts(ctx, []Fact{{Predicate: "test", Args: []interface{}{"arg"}}}); err != nil {
		t.Errorf("AddFacts should succeed when disabled: %v", err)
	}
	if len(engine.Facts()) != 0 {
		t.Error("Expected disabled engine to drop facts")
	}
	if err := engine.AddRule("some rule"); err != nil {
		t.Errorf("AddRule should succeed when disabled: %v", err)
	}
	if !engine.Ready() {
		t.Error("Engine should be ready when disabled")
	}
}

func TestEngineAddRule(t *testing.T) {
	engine := newTestEngine(t, 1000)
	ctx := context.Background()

	rule := `
Decl water_now_high(Subject).

water_now_high(P) :-
    water_today(P),
    plant_priority(P, "high").
`
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("AddRule failed: %v", err)
	}

	_ = engine.AddFacts(ctx, []Fact{
		{Predicate: PredDecision, Args: []interface{}{"pepper-1", "irrigate_today", 0.9}, Timestamp: time.Now()},
		{Predicate: PredPriority, Args: []interface{}{"pepper-1", "high"}, Timestamp: time.Now()},
	})

	results, err := engine.Evaluate(ctx, "water_now_high")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 1 || results[0].Args[0] != "pepper-1" {
		t.Errorf("Expected pepper-1, got %v", results)
	}

	// schema views survive the new rule
	views, err := engine.Evaluate(ctx, "water_today")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(views) != 1 {
		t.Errorf("Expected 1 water_today fact, got %d", len(views))
	}
}

func TestEngineAddRuleParseError(t *testing.T) {
	engine := newTestEngine(t, 1000)
	if err := engine.AddRule("invalid rule syntax $$"); err == nil {
		t.Error("Expected parse error for invalid rule syntax")
	}
}

func TestEngineAddRuleWithoutSchema(t *testing.T) {
	engine, err := NewEngine(config.MangleConfig{Enable: true, FactBufferLimit: 1000})
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}

	rule := `
Decl seen(Subject).
Decl ping(Subject).
seen(P) :- ping(P).
`
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("AddRule without schema failed: %v", err)
	}
	if !engine.Ready() {
		t.Error("Expected engine to be ready once a rule is loaded")
	}
}

func TestEngineTemporalQuery(t *testing.T) {
	engine := newTestEngine(t, 1000)
	ctx := context.Background()
	now := time.Now()
	past := now.Add(-5 * time.Second)

	_ = engine.AddFacts(ctx, []Fact{
		{Predicate: PredStatus, Args: []interface{}{"run-1", "success"}, Timestamp: past},
		{Predicate: PredStatus, Args: []interface{}{"run-2", "error"}, Timestamp: now},
	})

	if recent := engine.QueryTemporal(PredStatus, now.Add(-3*time.Second), time.Time{}); len(recent) != 1 {
		t.Errorf("Expected 1 recent fact, got %d", len(recent))
	}
	if all := engine.QueryTemporal(PredStatus, time.Time{}, time.Time{}); len(all) != 2 {
		t.Errorf("Expected 2 facts, got %d", len(all))
	}
	if none := engine.QueryTemporal("missing", time.Time{}, time.Time{}); len(none) != 0 {
		t.Errorf("Expected 0 facts, got %d", len(none))
	}
}

func TestEngineReplaceSubject(t *testing.T) {
	engine := newTestEngine(t, 1000)
	ctx := context.Background()

	_ = engine.AddFacts(ctx, []Fact{
		{Predicate: PredDecision, Args: []interface{}{"tomato-1", "irrigate_today", 1.0}, Timestamp: time.Now()},
		{Predicate: PredDecision, Args: []interface{}{"vine-1", "irrigate_today", 0.8}, Timestamp: time.Now()},
	})

	err := engine.ReplaceSubject(ctx, "tomato-1", []Fact{
		{Predicate: PredDecision, Args: []interface{}{"tomato-1", "skip", 0.7}, Timestamp: time.Now()},
	})
	if err != nil {
		t.Fatalf("ReplaceSubject failed: %v", err)
	}

	if got := engine.FactsByPredicate(PredDecision); len(got) != 2 {
		t.Errorf("Expected 2 decisions after replace, got %d", len(got))
	}

	results, err := engine.Evaluate(ctx, "water_today")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if len(results) != 1 || results[0].Args[0] != "vine-1" {
		t.Errorf("Expected only vine-1 to be watered today, got %v", results)
	}
}

func TestEngineMatchesAll(t *testing.T) {
	engine := newTestEngine(t, 1000)
	ctx := context.Background()

	_ = engine.AddFacts(ctx, []Fact{
		{Predicate: PredAnomaly, Args: []interface{}{"tomato-1", "high_humidity", "warning"}, Timestamp: time.Now()},
		{Predicate: PredPriority, Args: []interface{}{"tomato-1", "medium"}, Timestamp: time.Now()},
	})

	t.Run("all conditions match", func(t *testing.T) {
		conds := []Fact{
			{Predicate: PredAnomaly, Args: []interface{}{"tomato-1", "high_humidity"}},
			{Predicate: PredPriority},
		}
		if !engine.MatchesAll(conds) {
			t.Error("Expected all conditions to match")
		}
	})

	t.Run("missing predicate", func(t *testing.T) {
		if engine.MatchesAll([]Fact{{Predicate: PredDecision}}) {
			t.Error("Expected no match for missing predicate")
		}
	})

	t.Run("more condition args than fact args", func(t *testing.T) {
		conds := []Fact{{Predicate: PredPriority, Args: []interface{}{"tomato-1", "medium", "extra"}}}
		if engine.MatchesAll(conds) {
			t.Error("Expected no match when condition has more args than fact")
		}
	})
}

func TestEngineBufferLimit(t *testing.T) {
	engine := newTestEngine(t, 10)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_ = engine.AddFacts(ctx, []Fact{
			{Predicate: PredStatus, Args: []interface{}{"run", int64(i)}, Timestamp: time.Now()},
		})
	}

	buffered := engine.Facts()
	if len(buffered) != 10 {
		t.Errorf("Expected buffer size 10, got %d", len(buffered))
	}
	if got := engine.FactsByPredicate(PredStatus); len(got) != 10 {
		t.Errorf("Expected index to follow the trimmed buffer, got %d", len(got))
	}
	if buffered[0].Args[1] != int64(10) {
		t.Errorf("Expected oldest facts to be evicted, first is %v", buffered[0].Args)
	}
}

func TestEngineNoBufferLimit(t *testing.T) {
	engine := newTestEngine(t, 0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_ = engine.AddFacts(ctx, []Fact{
			{Predicate: PredMembership, Args: []interface{}{"p", "soil", "dry", float64(i)}, Timestamp: time.Now()},
		})
	}
	if got := len(engine.Facts()); got != 100 {
		t.Errorf("Expected 100 facts without limit, got %d", got)
	}
	if engine.SamplingRate() != 1.0 {
		t.Errorf("Expected full sampling without limit, got %v", engine.SamplingRate())
	}
}

func TestDefaultLowValuePredicates(t *testing.T) {
	predicates := defaultLowValuePredicates()

	for _, p := range []string{PredMembership, PredStageResult} {
		if !predicates[p] {
			t.Errorf("Expected %q to be a low-value predicate", p)
		}
	}
	for _, p := range []string{PredDecision, PredAnomaly, PredPriority, PredRecommendation, PredStatus} {
		if predicates[p] {
			t.Errorf("Expected %q to NOT be a low-value predicate", p)
		}
	}
}

func TestEngineSamplingRateThresholds(t *testing.T) {
	engine := newTestEngine(t, 100)

	tests := []struct {
		fill int
		want float64
	}{
		{45, 1.0},
		{60, 0.8},
		{80, 0.5},
		{90, 0.2},
		{99, 0.1},
	}
	for _, tt := range tests {
		engine.mu.Lock()
		engine.facts = make([]Fact, tt.fill)
		engine.updateSamplingRate()
		engine.mu.Unlock()

		if got := engine.SamplingRate(); got != tt.want {
			t.Errorf("At %d%% full, expected rate %v, got %v", tt.fill, tt.want, got)
		}
	}
}

func TestReplaceSubjectKeepsWholeAdvisory(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t, 100)

	filler := make([]Fact, 0, 95)
	for i := 0; i < 95; i++ {
		filler = append(filler, Fact{Predicate: PredStatus, Args: []interface{}{fmt.Sprintf("plant-%d", i), "success"}, Timestamp: time.Now()})
	}
	if err := engine.AddFacts(ctx, filler); err != nil {
		t.Fatalf("AddFacts failed: %v", err)
	}

	advisory := []Fact{
		{Predicate: PredDecision, Args: []interface{}{"tomato-1", "irrigate_today", 1.0}, Timestamp: time.Now()},
		{Predicate: PredMembership, Args: []interface{}{"tomato-1", "soil", "dry", 1.0}, Timestamp: time.Now()},
		{Predicate: PredMembership, Args: []interface{}{"tomato-1", "soil", "moist", 0.0}, Timestamp: time.Now()},
		{Predicate: PredStageResult, Args: []interface{}{"tomato-1", "validation", "success"}, Timestamp: time.Now()},
		{Predicate: PredStageResult, Args: []interface{}{"tomato-1", "estimation", "success"}, Timestamp: time.Now()},
	}
	if err := engine.ReplaceSubject(ctx, "tomato-1", advisory); err != nil {
		t.Fatalf("ReplaceSubject failed: %v", err)
	}
	if engine.SamplingRate() >= 1.0 {
		t.Fatalf("Expected buffer pressure, got rate %v", engine.SamplingRate())
	}

	if got := len(engine.FactsByPredicate(PredMembership)); got != 2 {
		t.Errorf("Expected 2 membership facts, got %d", got)
	}
	if got := len(engine.FactsByPredicate(PredStageResult)); got != 2 {
		t.Errorf("Expected 2 stage results, got %d", got)
	}
}

func TestEngineSubscription(t *testing.T) {
	engine := newTestEngine(t, 1000)

	ch := make(chan WatchEvent, 10)
	subID := engine.Subscribe("attention_needed", ch)
	if subID == "" {
		t.Error("Expected non-empty subscription ID")
	}

	found := false
	for _, p := range engine.WatchPredicates() {
		if p == "attention_needed" {
			found = true
		}
	}
	if !found {
		t.Error("Expected attention_needed in watched predicates")
	}

	_ = engine.AddFacts(context.Background(), []Fact{
		{Predicate: PredPriority, Args: []interface{}{"tomato-1", "urgent"}, Timestamp: time.Now()},
	})

	select {
	case ev := <-ch:
		if ev.Predicate != "attention_needed" || len(ev.Facts) != 1 {
			t.Errorf("Unexpected event %+v", ev)
		}
	default:
		t.Error("Expected a watch event after deriving attention_needed")
	}

	engine.Unsubscribe("attention_needed", ch)
	for _, p := range engine.WatchPredicates() {
		if p == "attention_needed" {
			t.Error("Expected attention_needed to be removed from watched predicates")
		}
	}
}

func TestEngineNotifyFullChannel(t *testing.T) {
	engine := newTestEngine(t, 1000)

	ch := make(chan WatchEvent)
	engine.Subscribe(PredStatus, ch)
	defer engine.Unsubscribe(PredStatus, ch)

	done := make(chan struct{})
	go func() {
		_ = engine.AddFacts(context.Background(), []Fact{
			{Predicate: PredStatus, Args: []interface{}{"run-1", "success"}, Timestamp: time.Now()},
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AddFacts blocked on an unbuffered subscriber")
	}
}

func TestEngineToConstantTypes(t *testing.T) {
	engine := newTestEngine(t, 1000)

	tests := []struct {
		in   interface{}
		want interface{}
	}{
		{"text", "text"},
		{42, int64(42)},
		{int64(7), int64(7)},
		{1.5, 1.5},
		{true, "true"},
		{false, "false"},
	}
	for _, tt := range tests {
		got := engine.convertConstant(engine.toConstant(tt.in))
		if got != tt.want {
			t.Errorf("Round trip of %v (%T): expected %v (%T), got %v (%T)", tt.in, tt.in, tt.want, tt.want, got, got)
		}
	}
	if engine.convertConstant(nil) != nil {
		t.Error("Expected nil for nil term")
	}
}
