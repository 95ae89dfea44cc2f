package mcp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"irrigation-mcp-server/internal/advisor"
	"irrigation-mcp-server/internal/mangle"
)

func matchFact(facts []mangle.Fact, wantArgs []interface{}) bool {
	if len(wantArgs) == 0 {
		return len(facts) > 0
	}
	for _, f := range facts {
		if len(f.Args) < len(wantArgs) {
			continue
		}
		ok := true
		for i := range wantArgs {
			if fmt.Sprintf("%v", f.Args[i]) != fmt.Sprintf("%v", wantArgs[i]) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func getStringArg(args map[string]interface{}, key string) string {
	return getStringFromMap(args, key)
}

func getStringFromMap(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// getBoolArg extracts a boolean argument with default.
func getBoolArg(args map[string]interface{}, key string, fallback bool) bool {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	if b, ok := val.(bool); ok {
		return b
	}
	return fallback
}

// getFloatArg returns a finite number argument. Numeric strings are accepted.
func getFloatArg(args map[string]interface{}, key string) (float64, bool) {
	val, ok := args[key]
	if !ok || val == nil {
		return 0, false
	}
	var f float64
	switch v := val.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func getFloatPtrArg(args map[string]interface{}, key string) *float64 {
	if f, ok := getFloatArg(args, key); ok {
		return &f
	}
	return nil
}

// getMapArg returns a nested object argument, or nil.
func getMapArg(args map[string]interface{}, key string) map[string]interface{} {
	m, _ := args[key].(map[string]interface{})
	return m
}

// parseTimeArg accepts RFC3339 timestamps and plain dates.
func parseTimeArg(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: want RFC3339 or YYYY-MM-DD", s)
	}
	return t, nil
}

// plantFromArgs reads an inline plant object as sent by MCP clients.
func plantFromArgs(args map[string]interface{}) (advisor.Plant, error) {
	p := advisor.Plant{
		ID:                   getStringArg(args, "id"),
		Name:                 getStringArg(args, "name"),
		Species:              getStringArg(args, "species"),
		PlantType:            getStringArg(args, "plant_type"),
		Category:             getStringArg(args, "category"),
		Stage:                getStringArg(args, "stage"),
		Soil:                 getStringArg(args, "soil"),
		Lat:                  getFloatPtrArg(args, "lat"),
		Lng:                  getFloatPtrArg(args, "lng"),
		WateringIntervalDays: getIntArg(args, "watering_interval_days", 0),
		SoilMoisture:         getFloatPtrArg(args, "soil_moisture"),
	}
	if v, ok := getFloatArg(args, "water_added_24h"); ok {
		p.WaterAdded24h = v
	}
	if raw := getStringArg(args, "last_watered_at"); raw != "" {
		t, err := parseTimeArg(raw)
		if err != nil {
			return advisor.Plant{}, fmt.Errorf("last_watered_at: %w", err)
		}
		p.LastWateredAt = &t
	}
	if (p.Lat == nil) != (p.Lng == nil) {
		return advisor.Plant{}, fmt.Errorf("lat and lng must be given together")
	}
	return p, nil
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}

func asInt(v interface{}) int {
	switch value := v.(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0
		}
		return n
	case []string:
		if len(value) == 0 {
			return 0
		}
		return asInt(value[0])
	default:
		return 0
	}
}
