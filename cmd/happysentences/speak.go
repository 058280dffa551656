package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/happysentences/internal/app"
	"github.com/MrWong99/happysentences/internal/diag"
	"github.com/MrWong99/happysentences/internal/speaker"
	"github.com/MrWong99/happysentences/pkg/emotion"
	"github.com/MrWong99/happysentences/pkg/types"
)

var errNoSpeech = errors.New("no speech engine configured (speech.engine)")

func newSpeakCmd(opts *rootOptions) *cobra.Command {
	var (
		lang string
		card string
	)
	cmd := &cobra.Command{
		Use:   "speak <sentence>...",
		Short: "Read sentences aloud on this host",
		Long: `speak reads each argument as one sentence, in order, with a short pause in
between. The voice follows the emotion detected in each sentence; --card
sets the fallback tone when no keyword matches.`,
		Example: `  happysentences speak "오늘도 수고했어요."
  happysentences speak --lang en --card courage "You can do this." "One step at a time."`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := types.ParseLanguage(lang)
			if err != nil {
				return err
			}
			_, application, cleanup, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			return speakAll(cmd, application, args, l, card)
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", string(types.LangKorean), "language of the text (kr, en)")
	cmd.Flags().StringVar(&card, "card", "", "tone card (KIND, REAL, COURAGE)")
	return cmd
}

// speakAll reads texts through the application's speaker and prints one line
// per outcome. It fails when any sentence did not play.
func speakAll(cmd *cobra.Command, application *app.App, texts []string, lang types.Language, card string) error {
	sp := application.Speaker()
	if sp == nil {
		return errNoSpeech
	}
	var c *emotion.Card
	if card != "" {
		parsed, err := emotion.ParseCard(card)
		if err != nil {
			return err
		}
		c = &parsed
	}

	reqs := make([]speaker.Request, len(texts))
	for i, t := range texts {
		reqs[i] = speaker.Request{Text: t, Language: lang, Card: c}
	}
	outcomes := sp.SpeakAll(cmd.Context(), reqs, 0)

	out := cmd.OutOrStdout()
	var failed []string
	for i, o := range outcomes {
		fmt.Fprintf(out, "%d. %s\n", i+1, describeOutcome(o))
		if !o.Success {
			failed = append(failed, string(o.Kind))
		}
	}
	if len(outcomes) < len(texts) {
		fmt.Fprintf(out, "stopped after %d of %d sentences\n", len(outcomes), len(texts))
	}
	if len(failed) > 0 {
		return fmt.Errorf("speech failed: %s", strings.Join(failed, ", "))
	}
	return nil
}

func describeOutcome(o types.Outcome) string {
	if o.Success {
		if o.Emotion != "" {
			return "ok (" + o.Emotion + ")"
		}
		return "ok"
	}
	msg := string(o.Kind)
	if o.Code != "" {
		msg += " [" + o.Code + "]"
	}
	if o.Message != "" {
		msg += ": " + o.Message
	}
	return msg
}

func describeStatus(e *diag.ErrorInfo) string {
	if e == nil {
		return "no error recorded"
	}
	return e.Code + ": " + e.Message
}
