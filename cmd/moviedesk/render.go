package main

import (
	"encoding/json"
	"fmt"
	"os"

	"moviecat-admin/pkg/entity"
	"moviecat-admin/pkg/picker"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

type recordView struct {
	ID        string                   `json:"id" yaml:"id"`
	Kind      string                   `json:"kind" yaml:"kind"`
	Fields    map[string]any           `json:"fields" yaml:"fields"`
	Relations map[string][]relatedView `json:"relations,omitempty" yaml:"relations,omitempty"`
}

type relatedView struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Role string `json:"role,omitempty" yaml:"role,omitempty"`
}

func toView(rec *entity.Record) recordView {
	view := recordView{ID: rec.ID, Kind: rec.Kind.String(), Fields: rec.Fields}
	if len(rec.Relations) > 0 {
		view.Relations = make(map[string][]relatedView, len(rec.Relations))
		for _, rel := range entity.RelationKinds {
			items := make([]relatedView, 0, len(rec.Relations[rel]))
			for _, e := range rec.Relations[rel] {
				items = append(items, relatedView{ID: e.ID, Name: e.DisplayName, Role: e.Role})
			}
			view.Relations[rel.String()] = items
		}
	}
	return view
}

func printRecord(rec *entity.Record, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(toView(rec))
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(toView(rec))
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	color.Cyan("%s #%s", rec.Kind, rec.ID)
	for _, name := range rec.FieldNames() {
		fmt.Printf("  %-14s %s\n", name, entity.FormatValue(rec.Fields[name]))
	}
	if rec.Kind != entity.KindMovie {
		return nil
	}
	for _, rel := range entity.RelationKinds {
		color.Yellow("  %s", rel)
		items := rec.Relations[rel]
		if len(items) == 0 {
			fmt.Println("    (none)")
		}
		for _, e := range items {
			if e.Role != "" {
				fmt.Printf("    #%-6s %s as %s\n", e.ID, e.DisplayName, e.Role)
				continue
			}
			fmt.Printf("    #%-6s %s\n", e.ID, e.DisplayName)
		}
	}
	return nil
}

func printResults(snap picker.Snapshot) {
	if len(snap.Results) == 0 {
		color.Yellow("No matches for %q", snap.Term)
		return
	}
	for _, r := range snap.Results {
		fmt.Printf("  #%-6s %s\n", r.ID, r.DisplayName)
	}
	if snap.HasMore {
		color.HiBlack("  ... more on page %d", snap.Page+1)
	}
}
