package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// readInput decodes a YAML or JSON file into out. "-" reads stdin.
func readInput(cmd *cobra.Command, path string, out interface{}) error {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse input %s: %w", path, err)
	}
	if doc.Kind == 0 {
		return nil
	}
	if err := rejectNonFinite(&doc); err != nil {
		return fmt.Errorf("parse input %s: %w", path, err)
	}
	if err := doc.Decode(out); err != nil {
		return fmt.Errorf("parse input %s: %w", path, err)
	}
	return nil
}

// rejectNonFinite fails on .inf and .nan scalars; they cannot be encoded as JSON.
func rejectNonFinite(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!float" {
		var f float64
		if err := n.Decode(&f); err == nil && (math.IsInf(f, 0) || math.IsNaN(f)) {
			return fmt.Errorf("line %d: non-finite number %s", n.Line, n.Value)
		}
	}
	for _, c := range n.Content {
		if err := rejectNonFinite(c); err != nil {
			return err
		}
	}
	return nil
}

// writeOutput prints v as indented JSON or as YAML. YAML keys follow the JSON
// field names, so v goes through JSON first. Commands render "text" themselves.
func writeOutput(cmd *cobra.Command, format string, v interface{}) error {
	out := cmd.OutOrStdout()
	switch format {
	case "json", "":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "yaml":
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		var generic interface{}
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want json, yaml or text)", format)
	}
}
