package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"irrigation-mcp-server/internal/advisor"
	"irrigation-mcp-server/internal/config"
	"irrigation-mcp-server/internal/mangle"
	"irrigation-mcp-server/internal/mcp"
)

const workspaceConfig = `server:
  name: garden-advisor
  version: 1.0.0-test
  log_file: data/server.log
mangle:
  enable: true
  fact_buffer_limit: 1000
advisor:
  parallel: 2
  explain: false
stations:
  - name: garden
    lat: 45.46
    lng: 9.19
    temp: 31
    humidity: 40
    rain_next_24h: 0
    soil_moisture_0_7cm: 18
plants:
  - id: tomato-1
    species: pomodoro
    stage: fioritura
    lat: 45.46
    lng: 9.19
    watering_interval_days: 2
    last_watered_at: "2025-07-12T14:30:00Z"
  - id: basil-1
    species: basilico
`

// TestIntegrationServerLifecycle wires what main() does without starting a transport.
func TestIntegrationServerLifecycle(t *testing.T) {
	if os.Getenv("SKIP_LIVE_TESTS") != "" {
		t.Skip("Skipping integration tests (SKIP_LIVE_TESTS set)")
	}

	root := t.TempDir()
	if err := config.InitWorkspace(root); err != nil {
		t.Fatalf("InitWorkspace failed: %v", err)
	}
	wsConfig := filepath.Join(root, config.WorkspaceDirName, config.WorkspaceConfigFile)
	if err := os.WriteFile(wsConfig, []byte(workspaceConfig), 0644); err != nil {
		t.Fatal(err)
	}

	schema, err := filepath.Abs("../../schemas/irrigation.mg")
	if err != nil {
		t.Fatal(err)
	}

	cfg, wsDir, err := config.LoadWithWorkspace("", config.WorkspaceOptions{ExplicitDir: root})
	if err != nil {
		t.Fatalf("LoadWithWorkspace failed: %v", err)
	}
	if wsDir != root {
		t.Fatalf("expected workspace %s, got %s", root, wsDir)
	}
	if cfg.Server.Name != "garden-advisor" {
		t.Errorf("expected server name from workspace, got %s", cfg.Server.Name)
	}
	if cfg.Server.LogFile != filepath.Join(root, "data", "server.log") {
		t.Errorf("expected log file resolved against workspace, got %s", cfg.Server.LogFile)
	}
	cfg.Mangle.SchemaPath = schema

	engine, err := mangle.NewEngine(cfg.Mangle)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	now := func() time.Time { return time.Date(2025, 7, 15, 14, 30, 0, 0, time.UTC) }
	server, err := mcp.NewServer(cfg, advisor.NewFromConfig(cfg, now), engine)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}

	t.Run("batch advisory feeds derived views", func(t *testing.T) {
		result, err := server.ExecuteTool("advise-batch", map[string]interface{}{})
		if err != nil {
			t.Fatalf("advise-batch failed: %v", err)
		}
		batch := result.(map[string]interface{})
		if batch["succeeded"] != 2 {
			t.Fatalf("expected 2 advised plants, got %v", batch)
		}

		evalResult, err := server.ExecuteTool("evaluate-rule", map[string]interface{}{
			"predicate": "attention_needed",
		})
		if err != nil {
			t.Fatalf("evaluate-rule failed: %v", err)
		}
		evalMap := evalResult.(map[string]interface{})
		if evalMap["count"].(int) != 1 {
			t.Errorf("expected tomato-1 to need attention, got %v", evalMap["facts"])
		}
	})

	t.Run("facts are readable", func(t *testing.T) {
		readResult, err := server.ExecuteTool("read-facts", map[string]interface{}{})
		if err != nil {
			t.Fatalf("read-facts failed: %v", err)
		}
		if readResult.(map[string]interface{})["count"].(int) == 0 {
			t.Error("expected facts to be readable")
		}
	})
}

// TestIntegrationConfigurationVariations tests different configuration scenarios
func TestIntegrationConfigurationVariations(t *testing.T) {
	if os.Getenv("SKIP_LIVE_TESTS") != "" {
		t.Skip("Skipping integration tests (SKIP_LIVE_TESTS set)")
	}

	t.Run("explicit config overrides workspace", func(t *testing.T) {
		root := t.TempDir()
		if err := config.InitWorkspace(root); err != nil {
			t.Fatalf("InitWorkspace failed: %v", err)
		}
		explicit := filepath.Join(root, "override.yaml")
		if err := os.WriteFile(explicit, []byte("advisor:\n  parallel: 9\n"), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, _, err := config.LoadWithWorkspace(explicit, config.WorkspaceOptions{ExplicitDir: root})
		if err != nil {
			t.Fatalf("LoadWithWorkspace failed: %v", err)
		}
		if cfg.Advisor.Workers() != 9 {
			t.Errorf("expected 9 workers, got %d", cfg.Advisor.Workers())
		}
	})

	t.Run("workspace disabled", func(t *testing.T) {
		cfg, wsDir, err := config.LoadWithWorkspace("", config.WorkspaceOptions{Disable: true})
		if err != nil {
			t.Fatalf("LoadWithWorkspace failed: %v", err)
		}
		if wsDir != "" {
			t.Errorf("expected no workspace, got %s", wsDir)
		}
		if cfg.Server.Name != "irrigation-mcp" {
			t.Errorf("expected default server name, got %s", cfg.Server.Name)
		}
	})

	t.Run("mangle engine disabled", func(t *testing.T) {
		engine, err := mangle.NewEngine(config.MangleConfig{Enable: false})
		if err != nil {
			t.Fatalf("Failed to create engine: %v", err)
		}
		server, err := mcp.NewServer(config.DefaultConfig(), nil, engine)
		if err != nil {
			t.Fatalf("NewServer failed: %v", err)
		}
		if _, err := server.ExecuteTool("query-facts", map[string]interface{}{"query": "plant_status(X, Y)."}); err == nil {
			t.Error("expected query to fail with the engine disabled")
		}
	})
}
