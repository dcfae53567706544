package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/subfetch/internal/app/run"
	"github.com/John-Robertt/subfetch/internal/config"
	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/provider"
)

func newSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		providerName string
		lang         string
		movie        string
		subtitle     string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "列出影片候选与第一部影片的字幕候选（不下载）",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := config.CLIArgs{
				Language:    lang,
				LanguageSet: cmd.Flags().Changed("language"),
			}
			if cmd.Flags().Changed("provider") {
				cli.Providers, cli.ProvidersSet = []string{providerName}, true
			}
			sess, err := ctx.open(cmd, cli)
			if err != nil {
				return err
			}

			name := sess.eff.Providers[0]
			p, ok := sess.reg.Get(name)
			if !ok {
				return fmt.Errorf("%w：%q", run.ErrUnknownProvider, name)
			}

			runner := &run.Runner{Client: sess.client, Logger: sess.log}
			res, err := runner.Search(cmd.Context(), p, run.Request{
				Query: strings.Join(args, " "),
				Options: domain.QueryOptions{
					Language:          sess.eff.Language,
					Match:             sess.eff.Match,
					LanguageThreshold: sess.eff.LanguageThreshold,
				},
				Selection: run.Selection{
					MovieQuery:    strings.TrimSpace(movie),
					SubtitleQuery: strings.TrimSpace(subtitle),
				},
			})
			if err != nil {
				return fmt.Errorf("%s: %w", provider.Kind(err), err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "provider: %s\n", res.Provider)
			fmt.Fprintln(out, renderTable([]string{"#", "Title", "Locator"}, movieRows(res.Movies), []columnAlignment{alignRight}))
			if len(res.Movies) > 0 {
				fmt.Fprintf(out, "subtitles of %q:\n", res.Movies[0].Title)
			}
			if len(res.Subtitles) == 0 {
				fmt.Fprintln(out, "（没有字幕候选）")
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"#", "Filename", "Language", "Archive"}, subtitleRows(res.Subtitles), []columnAlignment{alignRight}))
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&providerName, "provider", "p", "", "provider（默认取配置中的首选）")
	flags.StringVarP(&lang, "language", "l", "", "语言代码，例如 en")
	flags.StringVar(&movie, "movie", "", "影片消歧查询（只重排，不过滤）")
	flags.StringVar(&subtitle, "subtitle", "", "字幕文件名消歧查询（只重排，不过滤）")

	return cmd
}

func movieRows(movies []*provider.Movie) [][]string {
	rows := make([][]string, 0, len(movies))
	for i, m := range movies {
		rows = append(rows, []string{strconv.Itoa(i + 1), m.Title, m.Locator})
	}
	return rows
}

func subtitleRows(subs []*provider.Subtitle) [][]string {
	rows := make([][]string, 0, len(subs))
	for i, s := range subs {
		lang := string(s.Info.Language)
		if name := s.Info.Language.Name(); name != "" {
			lang += " (" + name + ")"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), orAny(s.Info.Filename), orAny(lang), yesNo(s.IsArchive)})
	}
	return rows
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
