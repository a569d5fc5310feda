package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tracemon/internal/ir"
)

// traceEntry is one event of a YAML trace. The field names match the
// events list of a harness scenario so one can be pasted into the other.
type traceEntry struct {
	Event string         `yaml:"event"`
	Args  map[string]any `yaml:"args"`
}

// traceDoc is the mapping form of a YAML trace.
type traceDoc struct {
	Events []traceEntry `yaml:"events"`
}

// ReadTraceFile reads the events of a trace file.
//
// Files ending in .jsonl or .ndjson hold one JSON event per line
// ({"name": ..., "args": {...}}); blank lines are skipped. Anything else
// is YAML: either a list of {event, args} entries or a mapping with
// such a list under "events". Seqs in the file are ignored since the
// engine stamps its own.
func ReadTraceFile(path string) ([]ir.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch filepath.Ext(path) {
	case ".jsonl", ".ndjson":
		return parseJSONLTrace(data)
	default:
		return parseYAMLTrace(data)
	}
}

func parseJSONLTrace(data []byte) ([]ir.Event, error) {
	var events []ir.Event
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.DisallowUnknownFields()
		var ev ir.Event
		if err := dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if ev.Name == "" {
			return nil, fmt.Errorf("line %d: event name is required", line)
		}
		ev.Seq = 0
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func parseYAMLTrace(data []byte) ([]ir.Event, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	// Decode again strictly, now that the shape is known.
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var entries []traceEntry
	switch root.Content[0].Kind {
	case yaml.SequenceNode:
		if err := dec.Decode(&entries); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	case yaml.MappingNode:
		var td traceDoc
		if err := dec.Decode(&td); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
		entries = td.Events
	default:
		return nil, fmt.Errorf("trace must be a list of events or a mapping with an events list")
	}

	events := make([]ir.Event, 0, len(entries))
	for i, e := range entries {
		if e.Event == "" {
			return nil, fmt.Errorf("events[%d]: event is required", i)
		}
		args, err := ir.ObjectFromAny(e.Args)
		if err != nil {
			return nil, fmt.Errorf("events[%d] (%s): %w", i, e.Event, err)
		}
		events = append(events, ir.Event{Name: e.Event, Args: args})
	}
	return events, nil
}
