package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// StageName identifies one stage of the decision chain.
type StageName string

const (
	StageValidation         StageName = "validation"
	StageFeatureEngineering StageName = "feature_engineering"
	StageEstimation         StageName = "estimation"
	StageAnomalyDetection   StageName = "anomaly_detection"
	StageActionGeneration   StageName = "action_generation"
)

// StageStatus is the audit outcome recorded for a stage after it runs.
type StageStatus string

const (
	StatusSuccess StageStatus = "success"
	StatusWarning StageStatus = "warning"
	StatusError   StageStatus = "error"
)

var (
	// ErrAlreadySet is returned when a stage tries to overwrite an artifact owned by a stage.
	ErrAlreadySet = errors.New("artifact already set")

	ErrMissingCleanedData = errors.New("cleaned data not available")
	ErrMissingFeatures    = errors.New("features not available")
	ErrMissingEstimation  = errors.New("estimation not available")
)

// Message is an error or warning attributed to the stage that raised it.
type Message struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// String formats the message as "[stage] message".
func (m Message) String() string {
	return fmt.Sprintf("[%s] %s", m.Stage, m.Message)
}

// StageResult is the audit record written exactly once per stage.
type StageResult struct {
	Status    StageStatus            `json:"status"`
	Data      map[string]interface{} `json:"data"`
	Timestamp string                 `json:"timestamp"`
}

// RunContext carries one pipeline invocation. Each artifact is written once by the
// stage that owns it; later stages only read it.
type RunContext struct {
	runID     string
	plantType string
	raw       map[string]interface{}

	cleaned     Record
	features    *Features
	estimation  *Estimation
	anomalies   []Anomaly
	suggestions *Suggestions

	errors       []Message
	warnings     []Message
	stageResults map[string]StageResult

	startedAt   time.Time
	completedAt time.Time
	now         func() time.Time
}

// NewRunContext creates a context over a copy of the raw input.
func NewRunContext(runID, plantType string, raw map[string]interface{}, now func() time.Time) *RunContext {
	if now == nil {
		now = time.Now
	}
	cp := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		cp[k] = v
	}
	return &RunContext{
		runID:        runID,
		plantType:    plantType,
		raw:          cp,
		anomalies:    []Anomaly{},
		errors:       []Message{},
		warnings:     []Message{},
		stageResults: make(map[string]StageResult),
		startedAt:    now(),
		now:          now,
	}
}

// RunID identifies the run in logs, facts and the envelope.
func (rc *RunContext) RunID() string { return rc.runID }

// PlantType is the resolved plant type the estimator selects a strategy from.
func (rc *RunContext) PlantType() string { return rc.plantType }

// Raw is the input as received; stages must not modify it.
func (rc *RunContext) Raw() map[string]interface{} { return rc.raw }

// CleanedData is nil until the validator has run.
func (rc *RunContext) CleanedData() Record { return rc.cleaned }

// Features is nil until the feature engineer succeeds.
func (rc *RunContext) Features() *Features { return rc.features }

// Estimation is nil until the estimator succeeds.
func (rc *RunContext) Estimation() *Estimation { return rc.estimation }

// Anomalies are appended by the anomaly detector in detection order.
func (rc *RunContext) Anomalies() []Anomaly { return rc.anomalies }

// Suggestions is nil until the action generator succeeds.
func (rc *RunContext) Suggestions() *Suggestions { return rc.suggestions }

// Errors holds one message per failed stage; a non-empty list fails the run.
func (rc *RunContext) Errors() []Message { return rc.errors }

// Warnings holds non-fatal stage messages.
func (rc *RunContext) Warnings() []Message { return rc.warnings }

// StartedAt is read from the run clock at creation.
func (rc *RunContext) StartedAt() time.Time { return rc.startedAt }

// CompletedAt is zero until the manager finishes the run.
func (rc *RunContext) CompletedAt() time.Time { return rc.completedAt }

// Now reads the run clock.
func (rc *RunContext) Now() time.Time { return rc.now() }

// StageResults is keyed by stage name.
func (rc *RunContext) StageResults() map[string]StageResult { return rc.stageResults }

func (rc *RunContext) setCleanedData(r Record) error {
	if rc.cleaned != nil {
		return fmt.Errorf("cleaned_data: %w", ErrAlreadySet)
	}
	rc.cleaned = r
	return nil
}

func (rc *RunContext) setFeatures(f Features) error {
	if rc.features != nil {
		return fmt.Errorf("features: %w", ErrAlreadySet)
	}
	rc.features = &f
	return nil
}

func (rc *RunContext) setEstimation(e Estimation) error {
	if rc.estimation != nil {
		return fmt.Errorf("estimation: %w", ErrAlreadySet)
	}
	rc.estimation = &e
	return nil
}

func (rc *RunContext) setSuggestions(s Suggestions) error {
	if rc.suggestions != nil {
		return fmt.Errorf("suggestions: %w", ErrAlreadySet)
	}
	rc.suggestions = &s
	return nil
}

func (rc *RunContext) appendAnomaly(a Anomaly) {
	rc.anomalies = append(rc.anomalies, a)
}

// AddError records a stage error. Any stage may append.
func (rc *RunContext) AddError(stage StageName, msg string) {
	rc.errors = append(rc.errors, Message{Stage: string(stage), Message: msg})
}

// AddWarning records a recoverable issue. Any stage may append.
func (rc *RunContext) AddWarning(stage StageName, msg string) {
	rc.warnings = append(rc.warnings, Message{Stage: string(stage), Message: msg})
}

func (rc *RunContext) setStageResult(stage StageName, status StageStatus, data map[string]interface{}) error {
	if _, exists := rc.stageResults[string(stage)]; exists {
		return fmt.Errorf("stage result %s: %w", stage, ErrAlreadySet)
	}
	rc.stageResults[string(stage)] = StageResult{
		Status:    status,
		Data:      data,
		Timestamp: rc.now().UTC().Format(time.RFC3339Nano),
	}
	return nil
}

func (rc *RunContext) complete() {
	rc.completedAt = rc.now()
}
