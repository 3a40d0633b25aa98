package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"readalong/internal/content"
	"readalong/internal/credentials"
)

func newPassagesCmd(a *app) *cobra.Command {
	var theme string

	cmd := &cobra.Command{
		Use:   "passages",
		Short: "List the stories you can read",
		RunE: func(cmd *cobra.Command, _ []string) error {
			passages := a.library.List()
			if theme != "" {
				passages = a.library.ByTheme(theme)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			printf(w, "ID\tTITLE\tTHEME\tSENTENCES\n")
			for _, p := range passages {
				printf(w, "%s\t%s\t%s\t%d\n", p.ID, p.Title, p.Theme, p.Len())
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&theme, "theme", "", "only show passages with this theme")
	return cmd
}

func newCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code",
		Short: "Print a new session code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			code, err := credentials.GenerateSessionCode()
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", code)
			return nil
		},
	}
}

func newListenCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "listen PASSAGE [SENTENCE]",
		Short: "Save a spoken version of a sentence and print its path",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			passage, err := a.library.Get(args[0])
			if err != nil {
				return err
			}
			speaker := a.speaker()

			if all {
				paths, err := speaker.Prefetch(cmd.Context(), passage.Sentences)
				if err != nil {
					return err
				}
				for _, s := range passage.Sentences {
					printf(cmd.OutOrStdout(), "%s\n", paths[s])
				}
				return nil
			}

			n := 1
			if len(args) == 2 {
				if n, err = strconv.Atoi(args[1]); err != nil {
					return fmt.Errorf("invalid sentence number %q", args[1])
				}
			}
			if n < 1 || n > passage.Len() {
				return fmt.Errorf("sentence must be between 1 and %d", passage.Len())
			}

			path, err := speaker.Speak(cmd.Context(), passage.Sentences[n-1])
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "render every sentence of the passage")
	return cmd
}

func passageFlag(cmd *cobra.Command, id *string) {
	cmd.Flags().StringVar(id, "passage", content.DefaultPassage, "passage id (see `reader passages`)")
}

func sentenceLabel(index, total int, text string) string {
	return fmt.Sprintf("Sentence %d/%d: %s", index+1, total, strings.TrimSpace(text))
}
