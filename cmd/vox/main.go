// Command vox is a terminal voice-to-text client: press space to record,
// press it again to transcribe, and the result lands on the clipboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jbarlow/vox/config"
	"github.com/jbarlow/vox/internal/clipboard"
	"github.com/jbarlow/vox/pkg/app"
	"github.com/jbarlow/vox/pkg/audio"
	"github.com/jbarlow/vox/pkg/logger"
	"github.com/jbarlow/vox/pkg/preset"
	"github.com/jbarlow/vox/pkg/provider"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vox:", err)
		os.Exit(1)
	}
}

func run() error {
	listDevices := flag.Bool("list-devices", false, "list input devices and exit")
	providerFlag := flag.String("provider", "", "override the configured provider for this run (e.g. openai, deepgram-realtime, local-whisper)")
	deviceFlag := flag.String("device", "", "override the configured microphone device for this run")
	presetFlag := flag.String("preset", "", "preset to start with (tab still cycles)")
	flag.Parse()

	if *listDevices {
		return printDevices()
	}

	store, err := config.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	defer store.Flush()

	// Flag overrides apply to this run only; they are layered over every
	// settings snapshot rather than written back to settings.toml.
	settingsFn := store.Get
	if *providerFlag != "" || *deviceFlag != "" {
		var kindOverride *provider.Kind
		if *providerFlag != "" {
			kind, err := provider.ParseKind(*providerFlag)
			if err != nil {
				return err
			}
			kindOverride = &kind
		}
		settingsFn = func() config.Settings {
			s := store.Get()
			if kindOverride != nil {
				s.Provider = *kindOverride
			}
			if *deviceFlag != "" {
				s.MicrophoneDevice = *deviceFlag
			}
			return s
		}
	}

	configDir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}

	// The TUI owns the terminal, so logs go to a file next to the settings.
	logFile, err := os.OpenFile(filepath.Join(configDir, "vox.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err == nil {
		logger.SetOutput(logFile)
		logger.EnableColors(false)
		defer logFile.Close()
	}
	defer logger.Flush()

	presets, err := preset.Load(filepath.Join(configDir, "presets"))
	if err != nil {
		return fmt.Errorf("load presets: %w", err)
	}

	settings := settingsFn()
	logger.Info(logger.CategoryApp, "vox starting with provider %s", settings.Provider.DisplayName())

	if err := store.Watch(func(next config.Settings) {
		logger.Info(logger.CategoryApp, "settings.toml changed on disk; provider %s and credentials take effect on the next recording, restart to pick up a changed registry", next.Provider.DisplayName())
	}); err != nil {
		logger.Warning(logger.CategoryApp, "settings watch disabled: %v", err)
	}
	defer store.Close()

	model := newModel(presets)
	if *presetFlag != "" {
		if err := model.selectPreset(*presetFlag); err != nil {
			return err
		}
	}

	var program *tea.Program
	orchestrator := app.New(app.Config{
		Registry:        app.NewRegistry(settings),
		Engines:         app.NewEngineCache(settings),
		PostBackends:    app.NewPostBackends(settings),
		Clipboard:       clipboard.Default{},
		HTTPClient:      app.NewHTTPClient(),
		RecorderFactory: app.NewRecorderFactory(),
		Settings:        settingsFn,
		OnEvent: func(e app.Event) {
			if program != nil {
				program.Send(orchestratorEventMsg{e})
			}
		},
	})
	model.orchestrator = orchestrator

	program = tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return err
	}

	if orchestrator.State() != app.Idle {
		orchestrator.Stop(context.Background())
	}
	return nil
}

func printDevices() error {
	devices, err := audio.ListDevices()
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Println("no input devices found")
		return nil
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		fmt.Printf("%s %-40s %d ch @ %.0f Hz\n", marker, d.Name, d.Channels, d.SampleRate)
	}
	return nil
}
