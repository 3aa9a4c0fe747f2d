package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/makanmate/makanmate/internal/app"
	"github.com/makanmate/makanmate/internal/geo"
)

type findFlags struct {
	voice    bool
	lat, lng float64
	located  bool
}

func newFindCmd(root *rootFlags) *cobra.Command {
	flags := &findFlags{}
	cmd := &cobra.Command{
		Use:   "find [prompt...]",
		Short: "Find restaurants for a request, typed or spoken",
		Long: `Find asks Gemini, grounded on Google Maps, for places matching your request
and prints the answer followed by a card per place.

With --voice a short clip is recorded from the microphone and sent along
with any typed prompt. Without a prompt or clip MakanMate recommends good
food nearby.`,
		Example: `  makanmate find halal dim sum in Subang Jaya
  makanmate find --voice
  makanmate find --lat 3.139 --lng 101.6869 cheap nasi kandar`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags.located = cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng")
			return runFind(cmd, root, flags, strings.Join(args, " "))
		},
	}
	cmd.Flags().BoolVar(&flags.voice, "voice", false, "record a spoken request from the microphone")
	cmd.Flags().Float64Var(&flags.lat, "lat", 0, "latitude to search around")
	cmd.Flags().Float64Var(&flags.lng, "lng", 0, "longitude to search around")
	return cmd
}

func runFind(cmd *cobra.Command, root *rootFlags, flags *findFlags, prompt string) error {
	ctx := cmd.Context()

	var extra []app.Option
	if flags.located {
		loc, err := geo.NewStatic(flags.lat, flags.lng)
		if err != nil {
			return err
		}
		extra = append(extra, app.WithLocator(loc))
	}

	e, err := setup(ctx, cmd, root, kinds{search: true}, extra...)
	if err != nil {
		return err
	}
	defer e.close()
	stop := e.startObservability(ctx)
	defer stop()

	req := app.FindRequest{Prompt: strings.TrimSpace(prompt)}
	if flags.voice {
		e.println(e.ui.Muted(fmt.Sprintf("Listening for %s...", e.cfg.Audio.RecordDuration())))
		clip, err := e.app.Record(ctx)
		if err != nil {
			return err
		}
		req.Audio = &clip
	}

	e.println(e.ui.Muted("Searching..."))
	res, err := e.app.Find(ctx, req)
	if err != nil {
		e.println(e.ui.Error("Search failed. Please try again."))
		return err
	}
	e.println(e.ui.Markdown(res.Text))
	e.println(e.ui.Places(res.Places))
	return nil
}
