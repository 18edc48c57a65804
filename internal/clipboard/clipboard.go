// Package clipboard delivers final transcripts to the system clipboard.
package clipboard

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"

	"github.com/jbarlow/vox/pkg/logger"
)

// Sink is the write-only clipboard contract the engine hands transcripts to.
// The core only ever writes; it never reads or observes clipboard state.
type Sink interface {
	WriteText(text string) error
}

// Default writes through atotto/clipboard, falling back to the platform's
// own clipboard tools when that fails (headless X sessions, Wayland without
// an X shim, containers, and remote desktops commonly break the library
// path while a CLI tool still works).
type Default struct{}

// WriteText implements Sink.
func (Default) WriteText(text string) error {
	err := clipboard.WriteAll(text)
	if err == nil {
		return nil
	}
	logger.Warning(logger.CategoryUI, "clipboard library write failed, trying platform tools: %v", err)

	var lastErr error
	for _, t := range platformTools() {
		if _, err := exec.LookPath(t.name); err != nil {
			continue
		}
		if err := pipeToCommand(t.name, t.args, text); err != nil {
			lastErr = err
			continue
		}
		logger.Debug(logger.CategoryUI, "transcript copied via %s", t.name)
		return nil
	}

	if lastErr != nil {
		return fmt.Errorf("clipboard: all write paths failed, last: %w", lastErr)
	}
	return fmt.Errorf("clipboard: no clipboard tool available on %s: %w", runtime.GOOS, err)
}

// tool is one external clipboard command that accepts text on stdin.
type tool struct {
	name string
	args []string
}

func platformTools() []tool {
	switch runtime.GOOS {
	case "linux":
		return []tool{
			{"wl-copy", nil},
			{"xclip", []string{"-selection", "clipboard"}},
			{"xsel", []string{"--clipboard", "--input"}},
		}
	case "darwin":
		return []tool{{"pbcopy", nil}}
	default:
		return nil
	}
}

// pipeToCommand runs name with args, writing text to its stdin and waiting
// for it to exit.
func pipeToCommand(name string, args []string, text string) error {
	cmd := exec.Command(name, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("%s: stdin: %w", name, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%s: start: %w", name, err)
	}
	if _, err := io.WriteString(stdin, text); err != nil {
		stdin.Close()
		_ = cmd.Wait()
		return fmt.Errorf("%s: write: %w", name, err)
	}
	if err := stdin.Close(); err != nil {
		_ = cmd.Wait()
		return fmt.Errorf("%s: close stdin: %w", name, err)
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
