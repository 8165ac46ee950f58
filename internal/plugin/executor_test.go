package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// scriptPlugin writes a shell script plugin into a temp dir.
func scriptPlugin(t *testing.T, name, script string) *Plugin {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name+".sh")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	return &Plugin{
		Manifest: Manifest{
			Name:       name,
			Version:    "1.0.0",
			Executable: name + ".sh",
			Actions:    []string{ActionKeystroke},
		},
		Path:       dir,
		Executable: path,
	}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := scriptPlugin(t, "ok-plugin", `#!/bin/sh
cat <<'EOF'
{"success":true,"data":{"message":"pressed"}}
EOF
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{
		Action:  ActionKeystroke,
		Gesture: "jump",
		Params:  json.RawMessage(`{"key":"w"}`),
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	if !response.Success {
		t.Errorf("expected success=true, got false")
	}

	var data map[string]any
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "pressed" {
		t.Errorf("expected message 'pressed', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	plugin := scriptPlugin(t, "echo-plugin", `#!/bin/sh
INPUT=$(cat)
echo "{\"success\":true,\"data\":{\"received\":$INPUT}}"
`)

	response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{
		Action:     ActionPress,
		Gesture:    "attack-basic",
		Confidence: 0.85,
		Params:     json.RawMessage(`{"key":"j"}`),
	})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var data struct {
		Received Request `json:"received"`
	}
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}

	got := data.Received
	if got.Action != ActionPress || got.Gesture != "attack-basic" || got.Confidence != 0.85 {
		t.Errorf("plugin received %+v", got)
	}

	var params KeyParams
	if err := json.Unmarshal(got.Params, &params); err != nil || params.Key != "j" {
		t.Errorf("params = %s, %v", got.Params, err)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	plugin := scriptPlugin(t, "slow-plugin", `#!/bin/sh
sleep 10
echo '{"success":true}'
`)

	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), plugin, &Request{Action: ActionKeystroke})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestExecutor_ContextCancelled(t *testing.T) {
	plugin := scriptPlugin(t, "slow-plugin", `#!/bin/sh
sleep 10
`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewExecutor(5*time.Second).Execute(ctx, plugin, &Request{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr bool
		wantMsg string
	}{
		{
			name:    "error response",
			script:  "#!/bin/sh\necho '{\"success\":false,\"error\":\"no display\"}'\n",
			wantMsg: "no display",
		},
		{
			name:    "invalid json",
			script:  "#!/bin/sh\necho 'not valid json'\n",
			wantErr: true,
		},
		{
			name:    "non-zero exit",
			script:  "#!/bin/sh\necho \"Error: something failed\" >&2\nexit 1\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := scriptPlugin(t, "fail-plugin", tt.script)

			response, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{Action: ActionKeystroke})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() failed: %v", err)
			}
			if response.Success || response.Error != tt.wantMsg {
				t.Errorf("response = %+v, want failure %q", response, tt.wantMsg)
			}
		})
	}
}

func TestNewExecutor(t *testing.T) {
	if e := NewExecutor(3 * time.Second); e.timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", e.timeout)
	}
	if e := NewExecutor(0); e.timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", e.timeout, DefaultTimeout)
	}
}
