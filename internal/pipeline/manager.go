package pipeline

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage is one link of the decision chain. Run returns the audit data for the
// stage result or a stage-fatal error.
type Stage interface {
	Name() StageName
	Run(rc *RunContext) (map[string]interface{}, error)
}

// Status is the overall outcome of a run.
type Status string

const (
	RunSucceeded Status = "success"
	RunFailed    Status = "error"
)

// Envelope is the stable output shape returned by Process.
type Envelope struct {
	Status     Status      `json:"status"`
	Suggestion *Suggestion `json:"suggestion"`
	Details    Details     `json:"details"`
	Metadata   Metadata    `json:"metadata"`
}

// Suggestion is the primary recommendation surfaced to the caller.
type Suggestion struct {
	ShouldWater       bool     `json:"should_water"`
	WaterAmountLiters float64  `json:"water_amount_liters"`
	Decision          Decision `json:"decision"`
	Description       string   `json:"description"`
	Timing            Timing   `json:"timing"`
	Priority          Priority `json:"priority"`
}

// Details carries every intermediate artifact of the run.
type Details struct {
	CleanedData     Record       `json:"cleaned_data"`
	Features        *Features    `json:"features"`
	Estimation      *Estimation  `json:"estimation"`
	Anomalies       []Anomaly    `json:"anomalies"`
	FullSuggestions *Suggestions `json:"full_suggestions"`
}

type Metadata struct {
	RunID        string                 `json:"run_id"`
	PlantType    string                 `json:"plant_type"`
	StartedAt    string                 `json:"started_at"`
	CompletedAt  string                 `json:"completed_at"`
	Errors       []Message              `json:"errors"`
	Warnings     []Message              `json:"warnings"`
	StageResults map[string]StageResult `json:"stage_results"`
}

// Manager runs the five stages in fixed order. A failed stage is recorded and the
// chain continues; later stages fail on their own when an upstream artifact is missing.
type Manager struct {
	stages           []Stage
	now              func() time.Time
	defaultPlantType string
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for day phase, season and timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithDefaultPlantType sets the plant type used when neither the caller nor the
// raw input declares one.
func WithDefaultPlantType(plantType string) Option {
	return func(m *Manager) {
		if strings.TrimSpace(plantType) != "" {
			m.defaultPlantType = plantType
		}
	}
}

// WithStages overrides the stage chain.
func WithStages(stages ...Stage) Option {
	return func(m *Manager) {
		m.stages = stages
	}
}

// NewManager wires Validator, FeatureEngineer, Estimator, AnomalyDetector and ActionGenerator.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		stages: []Stage{
			Validator{},
			FeatureEngineer{},
			Estimator{},
			AnomalyDetector{},
			ActionGenerator{},
		},
		now:              time.Now,
		defaultPlantType: string(PlantGeneric),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stages returns the chain in execution order.
func (m *Manager) Stages() []StageName {
	names := make([]StageName, 0, len(m.stages))
	for _, s := range m.stages {
		names = append(names, s.Name())
	}
	return names
}

// ResolvePlantType picks the explicit plant type, else the raw species, else the raw
// plant_type, else def.
func ResolvePlantType(explicit string, raw map[string]interface{}, def string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	r := Record(raw)
	if p := r.StringOr("species", ""); p != "" {
		return p
	}
	if p := r.StringOr("plant_type", ""); p != "" {
		return p
	}
	return def
}

// Run drives every stage over a fresh context and returns it.
func (m *Manager) Run(raw map[string]interface{}, plantType string) *RunContext {
	rc := NewRunContext(uuid.New().String(), ResolvePlantType(plantType, raw, m.defaultPlantType), raw, m.now)
	for _, stage := range m.stages {
		m.runStage(rc, stage)
	}
	rc.complete()

	if n := len(rc.Errors()); n > 0 {
		log.Printf("pipeline run %s (%s) completed with %d error(s)", rc.RunID(), rc.PlantType(), n)
	} else {
		log.Printf("pipeline run %s (%s) completed", rc.RunID(), rc.PlantType())
	}
	return rc
}

func (m *Manager) runStage(rc *RunContext, stage Stage) {
	name := stage.Name()
	warningsBefore := len(rc.Warnings())

	data, err := safeRun(stage, rc)
	if err != nil {
		log.Printf("pipeline run %s: stage %s failed: %v", rc.RunID(), name, err)
		rc.AddError(name, err.Error())
		_ = rc.setStageResult(name, StatusError, map[string]interface{}{"error": err.Error()})
		return
	}

	status := StatusSuccess
	if len(rc.Warnings()) > warningsBefore {
		status = StatusWarning
	}
	if err := rc.setStageResult(name, status, data); err != nil {
		rc.AddError(name, err.Error())
	}
}

func safeRun(stage Stage, rc *RunContext) (data map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return stage.Run(rc)
}

// Process runs the pipeline and shapes the output envelope. It never panics.
func (m *Manager) Process(raw map[string]interface{}, plantType string) (env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pipeline orchestration panic: %v", r)
			env = m.failedEnvelope(fmt.Sprintf("pipeline failure: %v", r))
		}
	}()
	return BuildEnvelope(m.Run(raw, plantType))
}

// BuildEnvelope shapes a finished context into the output envelope.
func BuildEnvelope(rc *RunContext) Envelope {
	env := Envelope{
		Status: RunSucceeded,
		Details: Details{
			CleanedData:     rc.CleanedData(),
			Features:        rc.Features(),
			Estimation:      rc.Estimation(),
			Anomalies:       rc.Anomalies(),
			FullSuggestions: rc.Suggestions(),
		},
		Metadata: Metadata{
			RunID:        rc.RunID(),
			PlantType:    rc.PlantType(),
			StartedAt:    rc.StartedAt().Format(time.RFC3339),
			CompletedAt:  rc.CompletedAt().Format(time.RFC3339),
			Errors:       rc.Errors(),
			Warnings:     rc.Warnings(),
			StageResults: rc.StageResults(),
		},
	}
	if len(rc.Errors()) > 0 {
		env.Status = RunFailed
	}

	if s := rc.Suggestions(); s != nil {
		env.Suggestion = &Suggestion{
			ShouldWater:       s.MainAction.Action == "irrigate",
			WaterAmountLiters: s.MainAction.WaterAmountLiters,
			Decision:          s.MainAction.Decision,
			Description:       s.MainAction.Description,
			Timing:            s.Timing,
			Priority:          s.Priority,
		}
	}
	return env
}

func (m *Manager) failedEnvelope(msg string) Envelope {
	now := m.now().Format(time.RFC3339)
	return Envelope{
		Status: RunFailed,
		Details: Details{
			Anomalies: []Anomaly{},
		},
		Metadata: Metadata{
			StartedAt:    now,
			CompletedAt:  now,
			Errors:       []Message{{Stage: "pipeline", Message: msg}},
			Warnings:     []Message{},
			StageResults: map[string]StageResult{},
		},
	}
}
