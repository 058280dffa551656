package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/happysentences/internal/generate"
	"github.com/MrWong99/happysentences/internal/library"
	"github.com/MrWong99/happysentences/pkg/types"
)

func newGenerateCmd(opts *rootOptions) *cobra.Command {
	var (
		lang     string
		asJSON   bool
		save     string
		speakOut bool
	)
	cmd := &cobra.Command{
		Use:   "generate <word or feeling>",
		Short: "Generate three encouraging sentences",
		Example: `  happysentences generate "오늘 너무 지쳤어"
  happysentences generate --lang en --save gentle "tired"`,
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

			ctx := cmd.Context()
			res, err := application.Generator().Generate(ctx, strings.Join(args, " "), l)
			if err != nil {
				return fmt.Errorf("%s (%w)", generate.UserMessage(err, l), err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "gentle: %s\nclear:  %s\nbrave:  %s\n\n%s\n", res.Lines.Gentle, res.Lines.Clear, res.Lines.Brave, res.Narration)
			}

			if save != "" {
				v, err := library.ParseVariant(save)
				if err != nil {
					return err
				}
				st, _, err := application.Library().ReplaceToday(ctx, lineFor(res.Lines, v), v)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "saved %s sentence for %s\n", v, st.Date)
			}
			if speakOut {
				return speakAll(cmd, application, []string{res.Lines.Gentle, res.Lines.Clear, res.Lines.Brave}, l, "")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", string(types.LangKorean), "language of the sentences (kr, en)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().StringVar(&save, "save", "", "save one line as today's sentence (gentle, clear, brave)")
	cmd.Flags().BoolVar(&speakOut, "speak", false, "read the three lines aloud")
	return cmd
}

func lineFor(l generate.Lines, v library.Variant) string {
	switch v {
	case library.VariantClear:
		return l.Clear
	case library.VariantBrave:
		return l.Brave
	default:
		return l.Gentle
	}
}
