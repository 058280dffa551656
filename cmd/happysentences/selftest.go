package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrWong99/happysentences/internal/selftest"
	"github.com/MrWong99/happysentences/pkg/types"
)

func newSelfTestCmd(opts *rootOptions) *cobra.Command {
	var (
		lang  string
		quick bool
	)
	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Play the speech self-test on this host",
		Long: `selftest speaks a fixed test sentence several times in a row and reports
how many rounds played, together with the diagnostic error of each failed
round. --quick plays a single round.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			l, err := types.ParseLanguage(lang)
			if err != nil {
				return err
			}
			_, application, cleanup, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			runner := application.SelfTest()
			if runner == nil {
				return errNoSpeech
			}
			out := cmd.OutOrStdout()
			if quick {
				if !runner.Quick(cmd.Context(), l) {
					return fmt.Errorf("quick self-test failed: %s", describeStatus(application.Speaker().Store().Status().LastError))
				}
				fmt.Fprintln(out, "quick self-test passed")
				return nil
			}

			res := runner.Run(cmd.Context(), l, func(round, total int) {
				fmt.Fprintf(out, "round %d/%d: %s\n", round, total, selftest.Sentence(l))
			})
			fmt.Fprintf(out, "pass %d, fail %d, total %s\n", res.Pass, res.Fail, res.TotalTime.Round(1e6))
			for _, e := range res.Errors {
				fmt.Fprintf(out, "  round %d: %s\n", e.Round, describeStatus(e.Error))
			}
			if res.Fail > 0 {
				return fmt.Errorf("%d of %d rounds failed", res.Fail, res.Pass+res.Fail)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", string(types.LangKorean), "language of the test sentence (kr, en)")
	cmd.Flags().BoolVar(&quick, "quick", false, "play a single round")
	return cmd
}
