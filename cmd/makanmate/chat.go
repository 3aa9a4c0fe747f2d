package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/makanmate/makanmate/internal/chat"
	"github.com/makanmate/makanmate/pkg/types"
)

// Chat commands typed at the prompt.
const (
	cmdVoice = "/voice"
	cmdQuit  = "/quit"
	cmdExit  = "/exit"
)

func newChatCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with MakanMate by text or voice",
		Long: `Chat opens a conversation with MakanMate. Type a message and press Enter.

  /voice   record a spoken message from the microphone
  /quit    leave the chat (Ctrl+C works too)`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, root)
		},
	}
}

func runChat(cmd *cobra.Command, root *rootFlags) error {
	ctx := cmd.Context()
	e, err := setup(ctx, cmd, root, kinds{chat: true})
	if err != nil {
		return err
	}
	defer e.close()
	stop := e.startObservability(ctx)
	defer stop()

	session, err := e.app.NewChat()
	if err != nil {
		return err
	}
	name := e.cfg.Assistant.Name
	for _, m := range session.History() {
		e.println(e.ui.Message(m, name))
	}
	e.println(e.ui.Muted("Type a message, /voice to speak, /quit to leave."))

	lines := readLines(ctx, cmd.InOrStdin())
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		var in chat.Input
		switch line {
		case "":
			continue
		case cmdQuit, cmdExit:
			return nil
		case cmdVoice:
			e.println(e.ui.Muted("Listening..."))
			clip, err := e.app.Record(ctx)
			if err != nil {
				e.println(e.ui.Error("Could not record audio: " + err.Error()))
				continue
			}
			in.Audio = &clip
			e.println(e.ui.Message(types.Message{Role: types.RoleUser, Text: chat.AudioPlaceholder, IsAudio: true}, name))
		default:
			in.Text = line
		}

		reply, err := session.Send(ctx, in)
		switch {
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			e.println(e.ui.Message(types.Message{Role: types.RoleModel, Text: chat.FallbackReply}, name))
			continue
		}
		e.println(e.ui.Message(types.Message{Role: types.RoleModel, Text: reply}, name))
	}
}

// readLines delivers r line by line until EOF or ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case out <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
