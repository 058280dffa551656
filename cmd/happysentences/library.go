package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/happysentences/internal/library"
)

func newLibraryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "library",
		Aliases: []string{"lib"},
		Short:   "Manage saved daily sentences",
	}

	// withLibrary runs fn against the configured library.
	withLibrary := func(fn func(cmd *cobra.Command, lib *library.Store, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			_, application, cleanup, err := opts.setup(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()
			return fn(cmd, application.Library(), args)
		}
	}

	var favoritesOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved sentences, newest first",
		Args:  cobra.NoArgs,
		RunE: withLibrary(func(cmd *cobra.Command, lib *library.Store, _ []string) error {
			var (
				all []library.Sentence
				err error
			)
			if favoritesOnly {
				all, err = lib.Favorites(cmd.Context())
			} else {
				all, err = lib.All(cmd.Context())
			}
			if err != nil {
				return err
			}
			printSentences(cmd.OutOrStdout(), all)
			return nil
		}),
	}
	list.Flags().BoolVar(&favoritesOnly, "favorites", false, "only list favourites")

	recent := &cobra.Command{
		Use:   "recent [n]",
		Short: "List the most recent sentences",
		Args:  cobra.MaximumNArgs(1),
		RunE: withLibrary(func(cmd *cobra.Command, lib *library.Store, args []string) error {
			n := library.DefaultRecent
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v <= 0 {
					return fmt.Errorf("invalid count %q", args[0])
				}
				n = v
			}
			all, err := lib.Recent(cmd.Context(), n)
			if err != nil {
				return err
			}
			printSentences(cmd.OutOrStdout(), all)
			return nil
		}),
	}

	today := &cobra.Command{
		Use:   "today",
		Short: "Show today's sentence",
		Args:  cobra.NoArgs,
		RunE: withLibrary(func(cmd *cobra.Command, lib *library.Store, _ []string) error {
			st, err := lib.TodaySentence(cmd.Context())
			if err != nil {
				return err
			}
			if st == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "no sentence saved for %s\n", lib.Today())
				return nil
			}
			printSentences(cmd.OutOrStdout(), []library.Sentence{*st})
			return nil
		}),
	}

	var replace bool
	save := &cobra.Command{
		Use:     "save <variant> <text>",
		Short:   "Save today's sentence",
		Example: `  happysentences library save gentle "오늘 많이 지쳤다면, 잠시 쉬어도 괜찮아요."`,
		Args:    cobra.MinimumNArgs(2),
		RunE: withLibrary(func(cmd *cobra.Command, lib *library.Store, args []string) error {
			v, err := library.ParseVariant(args[0])
			if err != nil {
				return err
			}
			text := strings.Join(args[1:], " ")
			var st library.Sentence
			if replace {
				st, _, err = lib.ReplaceToday(cmd.Context(), text, v)
			} else {
				st, err = lib.Save(cmd.Context(), text, v)
			}
			if errors.Is(err, library.ErrAlreadySaved) {
				return fmt.Errorf("%w (use --replace to swap it)", err)
			}
			if err != nil {
				return err
			}
			printSentences(cmd.OutOrStdout(), []library.Sentence{st})
			return nil
		}),
	}
	save.Flags().BoolVar(&replace, "replace", false, "replace today's sentence if one exists")

	favorite := &cobra.Command{
		Use:   "favorite <id>",
		Short: "Toggle the favourite flag of a sentence",
		Args:  cobra.ExactArgs(1),
		RunE: withLibrary(func(cmd *cobra.Command, lib *library.Store, args []string) error {
			st, err := lib.ToggleFavorite(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printSentences(cmd.OutOrStdout(), []library.Sentence{st})
			return nil
		}),
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a sentence",
		Args:  cobra.ExactArgs(1),
		RunE: withLibrary(func(cmd *cobra.Command, lib *library.Store, args []string) error {
			if err := lib.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(list, recent, today, save, favorite, del)
	return cmd
}

func printSentences(w io.Writer, all []library.Sentence) {
	if len(all) == 0 {
		fmt.Fprintln(w, "no sentences saved yet")
		return
	}
	for _, st := range all {
		star := " "
		if st.Favorite {
			star = "*"
		}
		fmt.Fprintf(w, "%s %s  %-6s  %s  (%s)\n", star, st.Date, st.Variant, st.Text, st.ID)
	}
}
