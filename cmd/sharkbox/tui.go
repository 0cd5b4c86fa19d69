package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/abelbrown/sharkbox/internal/auth"
	"github.com/abelbrown/sharkbox/internal/logging"
	"github.com/abelbrown/sharkbox/internal/ui"
)

type tuiOptions struct {
	box       string
	user      string
	threadID  int64
	commentID int64
	saved     bool
}

func newTUICmd() *cobra.Command {
	var opts tuiOptions
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Open the interactive browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.box, "box", "", "open this box")
	cmd.Flags().StringVar(&opts.user, "user", "", "open this user's profile")
	cmd.Flags().Int64Var(&opts.threadID, "thread", 0, "open this thread")
	cmd.Flags().Int64Var(&opts.commentID, "comment", 0, "with --thread, scroll to this comment")
	cmd.Flags().BoolVar(&opts.saved, "saved", false, "open the bookmarks")
	return cmd
}

func runTUI(cmd *cobra.Command, opts tuiOptions) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("the interactive browser needs a terminal; try `sharkbox boxes`")
	}
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app := ui.NewApp(ui.Config{
		Context:   ctx,
		Client:    rt.client,
		Marks:     rt.openMarks(),
		Session:   rt.session,
		Events:    rt.events,
		Ring:      rt.ring,
		PageSize:  rt.cfg.PageSize,
		Lookahead: rt.cfg.UI.Lookahead,
		Theme:     rt.cfg.UI.Theme,
		Start: ui.Start{
			Box:       opts.box,
			User:      opts.user,
			ThreadID:  opts.threadID,
			CommentID: opts.commentID,
			Saved:     opts.saved,
		},
	})

	var program atomic.Pointer[tea.Program]
	rt.setSessionHook(func(s *auth.Session) {
		p := program.Load()
		if p == nil {
			return
		}
		msg := ui.SessionChanged{}
		if s != nil {
			msg.Username, msg.Subject = s.Claims.Username(), s.Claims.Subject
		}
		p.Send(msg)
	})

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	program.Store(p)

	// A login or logout in another terminal shows up here.
	go func() {
		if err := rt.provider.Watch(ctx); err != nil && ctx.Err() == nil {
			logging.Warn("session watch stopped", "err", err)
		}
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
