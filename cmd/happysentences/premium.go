package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/happysentences/internal/observe"
	"github.com/MrWong99/happysentences/pkg/audio"
	"github.com/MrWong99/happysentences/pkg/provider/premium"
	"github.com/MrWong99/happysentences/pkg/types"
)

func newPremiumCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "premium",
		Short: "Play premium voice clips from a running server",
	}

	var (
		lang      string
		voice     string
		endpoint  string
		devBypass bool
	)
	play := &cobra.Command{
		Use:   "play <text>",
		Short: "Synthesize text on the server and play it here",
		Long: `play posts the text to the premium voice endpoint (premium.endpoint) and
plays the returned clip with ffplay or mpg123. The server decides whether the
account may use the premium voice; a refusal names the action needed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := types.ParseLanguage(lang)
			if err != nil {
				return err
			}
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			slog.SetDefault(newLogger(cfg.Server, nil))
			if endpoint == "" {
				endpoint = cfg.Premium.Endpoint
			}

			var playerOpts []audio.ExecOption
			if cfg.Premium.Player != "" {
				playerOpts = append(playerOpts, audio.WithPlayerBinary(cfg.Premium.Player))
			}
			player := audio.NewExecPlayer(playerOpts...)
			if !player.Available() {
				return audio.ErrNoPlayer
			}

			client := premium.New(endpoint, player,
				premium.WithDevBypass(devBypass),
				premium.WithMetrics(observe.DefaultMetrics()),
			)
			out := client.Play(cmd.Context(), strings.Join(args, " "), l, voice)
			if out.Success {
				fmt.Fprintln(cmd.OutOrStdout(), "played")
				return nil
			}
			if out.RequiresAction != "" {
				return fmt.Errorf("premium voice unavailable: %s (action: %s)", out.Message, out.RequiresAction)
			}
			return fmt.Errorf("premium voice failed: %s", describeOutcome(out))
		},
	}
	play.Flags().StringVarP(&lang, "lang", "l", string(types.LangKorean), "language of the text (kr, en)")
	play.Flags().StringVar(&voice, "voice", "", "voice ID (default: the server's voice)")
	play.Flags().StringVar(&endpoint, "endpoint", "", "override premium.endpoint")
	play.Flags().BoolVar(&devBypass, "dev-bypass", false, "ask a development server to skip the entitlement check")

	cmd.AddCommand(play)
	return cmd
}
