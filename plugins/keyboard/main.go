// Package main provides the keyboard plugin. It turns gesture actions into
// key events: AppleScript on macOS, xdotool on Linux.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action  string          `json:"action"`
	Gesture string          `json:"gesture"`
	Config  json.RawMessage `json:"config"`
	Params  json.RawMessage `json:"params"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// KeyParams defines parameters for all keyboard actions.
type KeyParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

var errKeyRequired = errors.New("key is required")

// appleModifiers maps user-friendly modifier names to AppleScript equivalents.
var appleModifiers = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

// xdoModifiers maps modifier names to xdotool key names.
var xdoModifiers = map[string]string{
	"command": "super",
	"cmd":     "super",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

// xdoKeys renames keys whose xdotool keysym differs from the config name.
var xdoKeys = map[string]string{
	"space": "space",
	" ":     "space",
	"enter": "Return",
	"esc":   "Escape",
	"up":    "Up",
	"down":  "Down",
	"left":  "Left",
	"right": "Right",
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeErrorResponse(fmt.Sprintf("failed to decode request: %v", err))
		return
	}

	name, args, err := buildCommand(runtime.GOOS, req)
	if err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v", req.Action, err))
		return
	}

	if output, err := exec.Command(name, args...).CombinedOutput(); err != nil {
		writeErrorResponse(fmt.Sprintf("action %s failed: %v: %s", req.Action, err, output))
		return
	}

	writeSuccessResponse()
}

// buildCommand returns the command line that performs req on goos.
func buildCommand(goos string, req Request) (string, []string, error) {
	var p KeyParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return "", nil, fmt.Errorf("failed to parse params: %w", err)
		}
	}
	if p.Key == "" {
		return "", nil, errKeyRequired
	}

	switch goos {
	case "darwin":
		script, err := appleScript(req.Action, p)
		if err != nil {
			return "", nil, err
		}
		return "osascript", []string{"-e", script}, nil
	case "linux":
		args, err := xdotoolArgs(req.Action, p)
		if err != nil {
			return "", nil, err
		}
		return "xdotool", args, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

func appleScript(action string, p KeyParams) (string, error) {
	var verb string
	switch action {
	case "keystroke", "shortcut":
		verb = "keystroke"
	case "press":
		verb = "key down"
	case "release":
		verb = "key up"
	default:
		return "", fmt.Errorf("unknown action: %s", action)
	}

	var mods []string
	for _, mod := range p.Modifiers {
		if m, ok := appleModifiers[strings.ToLower(mod)]; ok {
			mods = append(mods, m)
		}
	}

	script := fmt.Sprintf(`tell application "System Events" to %s "%s"`, verb, p.Key)
	if len(mods) > 0 && verb == "keystroke" {
		script += fmt.Sprintf(" using {%s}", strings.Join(mods, ", "))
	}
	return script, nil
}

func xdotoolArgs(action string, p KeyParams) ([]string, error) {
	var verb string
	switch action {
	case "keystroke", "shortcut":
		verb = "key"
	case "press":
		verb = "keydown"
	case "release":
		verb = "keyup"
	default:
		return nil, fmt.Errorf("unknown action: %s", action)
	}

	key := p.Key
	if k, ok := xdoKeys[strings.ToLower(key)]; ok {
		key = k
	}

	parts := make([]string, 0, len(p.Modifiers)+1)
	for _, mod := range p.Modifiers {
		if m, ok := xdoModifiers[strings.ToLower(mod)]; ok {
			parts = append(parts, m)
		}
	}
	parts = append(parts, key)

	return []string{verb, "--clearmodifiers", strings.Join(parts, "+")}, nil
}

// writeErrorResponse writes an error response to stdout.
func writeErrorResponse(errMsg string) {
	json.NewEncoder(os.Stdout).Encode(Response{Success: false, Error: errMsg})
}

// writeSuccessResponse writes a success response to stdout.
func writeSuccessResponse() {
	json.NewEncoder(os.Stdout).Encode(Response{Success: true})
}
