// Copyright 2026 The Crew Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// HookMapping pairs an agent lifecycle event with the status the hook
// reports when the event fires.
type HookMapping struct {
	Event   string
	State   string
	Matcher string
}

// HookMappings is the set of hooks "crew setup" installs. Together
// they keep a tab's status tracking the agent running in it: watching
// while the session starts, working through prompts and tool use,
// idle when the agent stops, question and attention for interaction,
// unknown once the session ends.
var HookMappings = []HookMapping{
	{Event: "SessionStart", State: "watching"},
	{Event: "UserPromptSubmit", State: "working"},
	{Event: "PreToolUse", State: "working", Matcher: "*"},
	{Event: "PostToolUse", State: "working", Matcher: "*"},
	{Event: "SubagentStart", State: "working", Matcher: "*"},
	{Event: "SubagentStop", State: "working", Matcher: "*"},
	{Event: "Stop", State: "idle"},
	{Event: "Notification", State: "attention", Matcher: "*"},
	{Event: "PermissionRequest", State: "question", Matcher: "*"},
	{Event: "SessionEnd", State: "unknown"},
}

// hookMarker identifies hook commands owned by crew, for idempotent
// install and clean removal.
const hookMarker = "crew status"

// DefaultSettingsPath returns the agent settings file the hooks are
// merged into.
func DefaultSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".claude", "settings.json"), nil
}

// readSettings loads the settings file, tolerating comments and
// trailing commas. A missing file yields an empty settings object.
func readSettings(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{"hooks": map[string]any{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var settings map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &settings); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if settings == nil {
		settings = map[string]any{}
	}
	return settings, nil
}

func writeSettings(path string, settings map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// InstallHooks merges the hook mappings into the settings file,
// skipping events that already carry a crew hook. Returns how many
// hooks were installed and how many were already present.
func InstallHooks(path string) (installed, skipped int, err error) {
	settings, err := readSettings(path)
	if err != nil {
		return 0, 0, err
	}

	hooks, ok := settings["hooks"].(map[string]any)
	if !ok {
		if settings["hooks"] != nil {
			return 0, 0, fmt.Errorf("%s: .hooks is not an object", path)
		}
		hooks = map[string]any{}
		settings["hooks"] = hooks
	}

	for _, mapping := range HookMappings {
		entries, ok := hooks[mapping.Event].([]any)
		if !ok {
			if hooks[mapping.Event] != nil {
				return 0, 0, fmt.Errorf("%s: .hooks.%s is not an array", path, mapping.Event)
			}
			entries = []any{}
		}

		present := false
		for _, entry := range entries {
			if hasCrewHook(entry) {
				present = true
				break
			}
		}
		if present {
			skipped++
			continue
		}
		hooks[mapping.Event] = append(entries, makeHookEntry(mapping))
		installed++
	}

	if err := writeSettings(path, settings); err != nil {
		return 0, 0, err
	}
	return installed, skipped, nil
}

// RemoveHooks strips every crew hook from the settings file, dropping
// event arrays that end up empty. Returns how many hooks were
// removed.
func RemoveHooks(path string) (removed int, err error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return 0, nil
	}
	settings, err := readSettings(path)
	if err != nil {
		return 0, err
	}
	hooks, ok := settings["hooks"].(map[string]any)
	if !ok {
		return 0, nil
	}

	for event, value := range hooks {
		entries, ok := value.([]any)
		if !ok {
			continue
		}
		kept := entries[:0:0]
		for _, entry := range entries {
			if hasCrewHook(entry) {
				removed++
				continue
			}
			kept = append(kept, entry)
		}
		if len(kept) == 0 {
			delete(hooks, event)
		} else {
			hooks[event] = kept
		}
	}

	if err := writeSettings(path, settings); err != nil {
		return 0, err
	}
	return removed, nil
}

// hasCrewHook reports whether a hook entry runs a crew command.
func hasCrewHook(entry any) bool {
	object, ok := entry.(map[string]any)
	if !ok {
		return false
	}
	inner, ok := object["hooks"].([]any)
	if !ok {
		return false
	}
	for _, hook := range inner {
		hookObject, ok := hook.(map[string]any)
		if !ok {
			continue
		}
		if command, ok := hookObject["command"].(string); ok && strings.Contains(command, hookMarker) {
			return true
		}
	}
	return false
}

func makeHookEntry(mapping HookMapping) map[string]any {
	entry := map[string]any{
		"hooks": []any{
			map[string]any{
				"type":    "command",
				"command": fmt.Sprintf("%s %s", hookMarker, mapping.State),
			},
		},
	}
	if mapping.Matcher != "" {
		entry["matcher"] = mapping.Matcher
	}
	return entry
}
