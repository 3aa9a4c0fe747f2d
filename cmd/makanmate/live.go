package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/makanmate/makanmate/internal/live"
	"github.com/makanmate/makanmate/internal/ui"
)

func newLiveCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Talk to MakanMate live through your microphone",
		Long: `Live opens a full-duplex voice conversation. Speak naturally; MakanMate
answers out loud and you can interrupt it at any time. Transcripts of both
sides are printed as they arrive. Press Ctrl+C to end the session.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLive(cmd, root)
		},
	}
}

func runLive(cmd *cobra.Command, root *rootFlags) error {
	ctx := cmd.Context()
	e, err := setup(ctx, cmd, root, kinds{live: true})
	if err != nil {
		return err
	}
	defer e.close()
	stop := e.startObservability(ctx)
	defer stop()

	p := &livePrinter{env: e, assistant: e.cfg.Assistant.Name}
	e.println(e.ui.Muted("Connecting..."))
	session, err := e.app.Live().Start(ctx, p)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		if err := e.app.Live().Stop(); err != nil {
			e.log.Debug("live stop", "err", err)
		}
	case <-session.Done():
	}
	p.finish()

	if err := session.Err(); err != nil {
		return err
	}
	return nil
}

// livePrinter renders live notifications as they arrive. Fragments from the
// same speaker continue the current line.
type livePrinter struct {
	env       *env
	assistant string

	mu      sync.Mutex
	log     ui.TranscriptLog
	midLine bool
}

var _ live.Observer = (*livePrinter)(nil)

func (p *livePrinter) OnStatus(s live.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
	p.env.println(p.env.ui.Status(s))
}

func (p *livePrinter) OnText(t live.Transcript) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, started := p.log.Add(t)
	if started {
		p.breakLine()
		fmt.Fprint(p.env.out, p.env.ui.Transcript(entry, p.assistant))
	} else {
		fmt.Fprint(p.env.out, t.Text)
	}
	p.midLine = true
	if entry.Final {
		p.breakLine()
	}
}

// finish ends any open line.
func (p *livePrinter) finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.breakLine()
}

func (p *livePrinter) breakLine() {
	if p.midLine {
		fmt.Fprintln(p.env.out)
		p.midLine = false
	}
}
