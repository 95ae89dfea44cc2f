package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"irrigation-mcp-server/internal/mangle"
	"irrigation-mcp-server/internal/pipeline"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"irrigation://about",
			"Irrigation Advisor About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info, supported plants, pipeline stages and derived fact views."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"irrigation://plants",
			"Plant Registry",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Plants configured for advise-plant and advise-batch."),
		),
		s.handlePlantsResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"irrigation://plant/{plantId}/facts{?predicate,limit}",
			"Plant Facts",
			mcp.WithTemplateMIMEType(resourceMIMEJSON),
			mcp.WithTemplateDescription("Latest advisory facts published for one plant (optionally filtered by predicate)."),
		),
		s.handlePlantFactsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":             s.cfg.Server.Name,
		"version":          s.cfg.Server.Version,
		"supported_plants": pipeline.SupportedPlants(),
		"stages":           s.pipeline.Stages(),
		"derived_views":    mangle.DerivedPredicates,
		"notes": []string{
			"Resources are read-only context endpoints; use tools for advisories and fact mutations.",
			"Every advisory replaces the facts of its plant, so derived views reflect the latest run.",
			"Anonymous pipeline runs are published under their run id.",
		},
		"timestamp_ms": s.now().UnixMilli(),
	}
	return jsonResource(request.Params.URI, payload)
}

func (s *Server) handlePlantsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	plants := make([]map[string]interface{}, 0, len(s.cfg.Plants))
	for _, p := range s.cfg.Plants {
		entry := map[string]interface{}{
			"id":      p.ID,
			"name":    p.Name,
			"species": p.Species,
			"stage":   p.Stage,
			"has_geo": p.Lat != nil && p.Lng != nil,
		}
		if p.LastWateredAt != "" {
			entry["last_watered_at"] = p.LastWateredAt
		}
		if days := p.IntervalDays(); days > 0 {
			entry["watering_interval_days"] = days
		}
		if p.Growth != nil {
			if sun := p.Growth.Sunlight(); sun != "" {
				entry["sunlight"] = sun
			}
		}
		plants = append(plants, entry)
	}
	return jsonResource(request.Params.URI, map[string]interface{}{
		"count":  len(plants),
		"plants": plants,
	})
}

func (s *Server) handlePlantFactsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("mangle engine unavailable")
	}

	plantID := argString(request.Params.Arguments["plantId"])
	if plantID == "" {
		return nil, fmt.Errorf("missing plantId")
	}
	predicate := argString(request.Params.Arguments["predicate"])
	limit := asInt(request.Params.Arguments["limit"])
	if limit <= 0 {
		limit = defaultReadLimit
	}
	if limit > maxReadLimit {
		limit = maxReadLimit
	}

	facts := selectRecentPlantFacts(s.engine, plantID, predicate, limit)
	return jsonResource(request.Params.URI, map[string]interface{}{
		"plant_id":  plantID,
		"predicate": predicate,
		"limit":     limit,
		"count":     len(facts),
		"facts":     facts,
	})
}

func jsonResource(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

// selectRecentPlantFacts returns up to limit facts whose subject is plantID, oldest first.
func selectRecentPlantFacts(engine *mangle.Engine, plantID, predicate string, limit int) []mangle.Fact {
	if engine == nil || plantID == "" || limit <= 0 {
		return []mangle.Fact{}
	}

	var source []mangle.Fact
	if predicate != "" {
		source = engine.FactsByPredicate(predicate)
	} else {
		source = engine.Facts()
	}

	out := make([]mangle.Fact, 0, min(limit, len(source)))
	for i := len(source) - 1; i >= 0 && len(out) < limit; i-- {
		f := source[i]
		if len(f.Args) == 0 {
			continue
		}
		if fmt.Sprintf("%v", f.Args[0]) != plantID {
			continue
		}
		out = append(out, f)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
