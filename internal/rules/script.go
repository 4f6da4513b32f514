package rules

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ScriptOutcome is the terminal state of one validator run. A run starts
// spawned, moves to running once the process is up, and ends in exactly
// one of these.
type ScriptOutcome string

const (
	// OutcomeCompleted means the process exited on its own; ExitCode is
	// meaningful.
	OutcomeCompleted ScriptOutcome = "completed"
	// OutcomeTimedOut means the deadline passed and the process group was
	// killed.
	OutcomeTimedOut ScriptOutcome = "timed_out"
	// OutcomeSpawnFailed means the process never started.
	OutcomeSpawnFailed ScriptOutcome = "spawn_failed"
)

// ScriptResult is what a validator run produced. On a zero exit, Stdout is
// injectable context; on a nonzero exit, Stderr is the block reason.
type ScriptResult struct {
	Outcome  ScriptOutcome
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

// Output capture is capped so a runaway script cannot balloon the
// decision payload.
const maxScriptOutput = 1 << 20

// RunScript executes a validator executable with the event payload on
// stdin. The deadline is enforced with a wall clock: when it passes, the
// whole process group is killed so grandchildren cannot linger. Wall time
// bounds CPU time from above, which is the practical limit this process
// can impose without OS-level accounting.
func RunScript(ctx context.Context, path string, payload []byte, timeout time.Duration) ScriptResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.Command(path)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr limitedBuffer
	stdout.max = maxScriptOutput
	stderr.max = maxScriptOutput
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	setProcGroup(cmd)

	if err := cmd.Start(); err != nil {
		return ScriptResult{Outcome: OutcomeSpawnFailed, Err: err}
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		killProcGroup(cmd)
		<-done
		return ScriptResult{
			Outcome: OutcomeTimedOut,
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
			Err:     ctx.Err(),
		}
	case err := <-done:
		res := ScriptResult{
			Outcome: OutcomeCompleted,
			Stdout:  stdout.String(),
			Stderr:  stderr.String(),
		}
		if err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				res.ExitCode = exitErr.ExitCode()
			} else {
				res.Outcome = OutcomeSpawnFailed
				res.Err = err
			}
		}
		return res
	}
}

// ResolveScript turns a validator config into an executable path. External
// scripts are optionally pinned by content hash; inline bodies are
// materialized as owner-only temp files. cleanup must always be called.
func ResolveScript(v *ValidatorConfig) (path string, cleanup func(), err error) {
	cleanup = func() {}

	if v.Script != "" {
		if v.SHA256 != "" {
			if err := verifyScriptHash(v.Script, v.SHA256); err != nil {
				return "", cleanup, err
			}
		}
		return v.Script, cleanup, nil
	}

	f, err := os.CreateTemp("", "hookwarden-validator-*")
	if err != nil {
		return "", cleanup, fmt.Errorf("failed to create temp script: %w", err)
	}
	name := f.Name()
	cleanup = func() { os.Remove(name) }

	if _, err := f.WriteString(v.Inline); err != nil {
		f.Close()
		return "", cleanup, fmt.Errorf("failed to write temp script: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", cleanup, fmt.Errorf("failed to close temp script: %w", err)
	}
	if err := os.Chmod(name, 0700); err != nil {
		return "", cleanup, fmt.Errorf("failed to chmod temp script: %w", err)
	}
	return name, cleanup, nil
}

// verifyScriptHash compares the file's current content hash against the
// configured pin. A mismatch means the script changed since the rule was
// written and it must not run.
func verifyScriptHash(path, want string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script for hash check: %w", err)
	}
	sum := sha256.Sum256(data)
	got := hex.EncodeToString(sum[:])
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("script hash mismatch: got %s, want %s", got, want)
	}
	return nil
}

// limitedBuffer keeps the first max bytes and silently drops the rest.
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		b.buf.Write(p)
	}
	return n, nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}
