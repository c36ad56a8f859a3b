package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/actions"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/config"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/mds"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/statusbar"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the project and show the status bar",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

// tuiModel is the status bar plus the shortcut help. Keys other than quit
// are handed to the dispatcher on the loop goroutine.
type tuiModel struct {
	bar      statusbar.Model
	help     help.Model
	dispatch func(tea.KeyMsg)
	keys     []key.Binding
}

func (m tuiModel) Init() tea.Cmd { return m.bar.Init() }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}
		m.dispatch(km)
		return m, nil
	}
	if ws, ok := msg.(tea.WindowSizeMsg); ok {
		m.help.Width = ws.Width
	}
	bar, cmd := m.bar.Update(msg)
	m.bar = bar.(statusbar.Model)
	return m, cmd
}

func (m tuiModel) View() string {
	return m.help.ShortHelpView(m.keys) + "\n" + m.bar.View()
}

func runTUI(cmd *cobra.Command, _ []string) error {
	cfg, err := loadRuntimeConfig()
	if err != nil {
		return err
	}
	cfg.logFile = filepath.Join(config.StateDir(), "abcore.log")
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := openApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	a.menu()
	ui := tuiModel{
		bar:  statusbar.NewModel(a.collector.State()),
		help: help.New(),
		keys: a.dispatcher.Bindings(),
	}
	ui.dispatch = func(km tea.KeyMsg) {
		a.loop.Post(func() {
			if _, err := a.dispatcher.HandleKey(ctx, km); err != nil && !errors.Is(err, actions.ErrShown) {
				a.logger.Error("abcore: shortcut failed", "key", km.String(), "err", err)
			}
		})
	}
	p := tea.NewProgram(ui)
	statusbar.Forward(a.collector, p)
	a.core.Store.StatusChanged.Connect(func(c mds.StatusChange) {
		a.collector.SetLeft(fmt.Sprintf("Metadata %s: %s", c.Phase, c.Status))
	})

	loopDone := make(chan error, 1)
	go func() { loopDone <- a.loop.Run(ctx) }()

	_, runErr := p.Run()
	cancel()
	<-loopDone
	return runErr
}

// menu registers the shortcut actions. Calculate samples the first setup
// of the current project when it fires.
func (a *app) menu() []actions.MenuEntry {
	firstSetup := func() (string, error) {
		p := a.manager.Current()
		if p == nil || len(p.SetupNames()) == 0 {
			return "", model.NotFound("calculation setup", "(any)")
		}
		return p.SetupNames()[0], nil
	}
	var out []actions.MenuEntry
	for _, act := range a.shortcuts {
		var args []any
		if act == actions.Action(a.calculate) {
			args = append(args, firstSetup)
		}
		out = append(out, a.dispatcher.Entry(act, "", args...))
	}
	return out
}
