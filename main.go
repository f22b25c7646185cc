package main

import (
	"embed"
	"log/slog"

	"github.com/wailsapp/wails/v3/pkg/application"
	"github.com/wailsapp/wails/v3/pkg/events"

	"go.aimuz.me/murmur/internal/app"
)

//go:embed all:frontend/dist
var assets embed.FS

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.Info("starting murmur", "version", version, "commit", commit, "date", date)
	svc := app.New(version)

	wapp := application.New(application.Options{
		Name:        "Murmur",
		Description: "Push-to-dictate for the desktop",
		Services: []application.Service{
			application.NewService(svc),
		},
		Assets: application.AssetOptions{
			Handler: application.BundledAssetFileServer(assets),
		},
		Mac: application.MacOptions{
			// Don't quit when all windows are closed (we have a system tray)
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	// Settings window, hidden until opened from the tray.
	settings := wapp.Window.NewWithOptions(application.WebviewWindowOptions{
		Title:  "Murmur",
		Width:  720,
		Height: 520,
		URL:    "/",
		Hidden: true,
		Mac: application.MacWindow{
			TitleBar:                application.MacTitleBarHiddenInsetUnified,
			InvisibleTitleBarHeight: 38,
		},
	})

	// Floating status indicator: frameless, always on top, shown and
	// hidden by the session orchestrator.
	indicator := wapp.Window.NewWithOptions(application.WebviewWindowOptions{
		Width:         360,
		Height:        88,
		URL:           "/#/indicator",
		Hidden:        true,
		Frameless:     true,
		AlwaysOnTop:   true,
		DisableResize: true,
	})

	// Intercept window close: hide instead of destroy so tray can reopen
	settings.RegisterHook(events.Common.WindowClosing, func(e *application.WindowEvent) {
		e.Cancel()
		settings.Hide()
	})

	svc.Init(wapp, indicator)

	systemTray := wapp.SystemTray.New()
	systemTray.SetLabel("murmur")

	trayMenu := wapp.NewMenu()
	trayMenu.Add("Settings…").OnClick(func(ctx *application.Context) {
		settings.Show()
		settings.Focus()
	})
	trayMenu.Add("Cancel Dictation").OnClick(func(ctx *application.Context) {
		svc.CancelSession()
	})
	trayMenu.AddSeparator()
	trayMenu.Add("Quit Murmur").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(ctx *application.Context) {
			svc.Shutdown()
			wapp.Quit()
		})

	systemTray.SetMenu(trayMenu)

	if err := wapp.Run(); err != nil {
		slog.Error("run app", "error", err)
	}
}
