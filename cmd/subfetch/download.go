package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/subfetch/internal/app/run"
	"github.com/John-Robertt/subfetch/internal/config"
	"github.com/John-Robertt/subfetch/internal/domain"
)

type downloadFlags struct {
	providers []string
	language  string
	movie     string
	subtitle  string
	out       string
	all       bool
	force     bool
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var f downloadFlags

	cmd := &cobra.Command{
		Use:   "download <query>",
		Short: "搜索并下载最匹配的字幕",
		Long: `按 provider 顺序依次尝试，第一个成功的结果写入输出目录。

stdout 是终端时在 stderr 输出进度、在 stdout 输出摘要；
否则 stdout 只输出一个 JSON 报告。`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDownload(cmd, ctx, f, strings.Join(args, " "))
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&f.providers, "provider", "p", nil, "provider（可重复，按顺序回退）")
	flags.StringVarP(&f.language, "language", "l", "", "语言代码，例如 en")
	flags.StringVar(&f.movie, "movie", "", "影片消歧查询（只重排，不过滤）")
	flags.StringVar(&f.subtitle, "subtitle", "", "字幕文件名消歧查询（只重排，不过滤）")
	flags.StringVarP(&f.out, "out", "o", "", "输出目录（默认当前目录）")
	flags.BoolVar(&f.all, "all", false, "压缩包内有多个候选时全部写出")
	flags.BoolVar(&f.force, "force", false, "覆盖已存在的文件")

	return cmd
}

func runDownload(cmd *cobra.Command, ctx *commandContext, f downloadFlags, query string) error {
	started := time.Now()
	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	tty := ctx.deps.isTerminal(stdout)

	cli := config.CLIArgs{
		Providers:    f.providers,
		ProvidersSet: cmd.Flags().Changed("provider"),
		Language:     f.language,
		LanguageSet:  cmd.Flags().Changed("language"),
		OutputDir:    f.out,
		OutputDirSet: cmd.Flags().Changed("out"),
	}

	sess, err := ctx.open(cmd, cli)
	if err != nil {
		kind := config.Code(err)
		if kind == "" {
			kind = domain.KindConfigInvalid
		}
		rep := run.FailReport(run.Request{Query: query}, f.providers, "", kind, err, started, time.Now())
		return emitReport(stdout, stderr, tty, rep)
	}

	req := run.Request{
		Query: query,
		Options: domain.QueryOptions{
			Language:          sess.eff.Language,
			Match:             sess.eff.Match,
			LanguageThreshold: sess.eff.LanguageThreshold,
		},
		Selection: run.Selection{
			MovieQuery:    strings.TrimSpace(f.movie),
			SubtitleQuery: strings.TrimSpace(f.subtitle),
		},
	}

	runner := &run.Runner{Client: sess.client, Logger: sess.log}
	var ui *progressUI
	if ctx.deps.isTerminal(stderr) {
		ui = newProgressUI(stderr, sess.eff)
		runner.Observer = ui
	}

	out, runErr := runner.DownloadFirst(cmd.Context(), sess.reg, sess.eff.Providers, req)
	if ui != nil {
		ui.Stop()
	}

	var outputs []string
	var writeErr error
	if runErr == nil {
		outputs, writeErr = run.WriteOutputs(sess.eff.OutputDir, out.Result.File, query, f.all, f.force)
	}

	rep := run.BuildReport(req, sess.eff.Providers, out, runErr, outputs, started, time.Now())
	if writeErr != nil {
		rep.ErrorKind = domain.KindIOFailed
		rep.ErrorMsg = writeErr.Error()
		rep.Finalize()
	}
	if runErr != nil && errors.Is(runErr, run.ErrUnknownProvider) {
		rep.ErrorKind = domain.KindConfigInvalid
		rep.Finalize()
	}
	return emitReport(stdout, stderr, tty, rep)
}

// emitReport 按输出模式写出结果；失败时返回 exitError（内容已输出，main 不再重复打印）。
//
// stdout 非 TTY：stdout 必须且仅输出一个 JSON 报告，摘要走 stderr。
func emitReport(stdout, stderr io.Writer, tty bool, rep domain.DownloadReport) error {
	if tty {
		printSummary(stdout, rep)
		for _, a := range rep.Attempts {
			if a.Status != domain.StatusFailed {
				continue
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", a.Provider, a.ErrorKind, truncate(a.ErrorMsg, 200))
		}
		if rep.ErrorKind != "" && len(rep.Attempts) == 0 {
			fmt.Fprintf(stderr, "%s: %s\n", rep.ErrorKind, rep.ErrorMsg)
		}
	} else {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
		printSummary(stderr, rep)
	}

	if rep.Status == domain.StatusDownloaded {
		return nil
	}
	return &exitError{code: 1, err: fmt.Errorf("%s: %s", rep.ErrorKind, rep.ErrorMsg)}
}

func printSummary(w io.Writer, rep domain.DownloadReport) {
	if rep.Status == domain.StatusDownloaded {
		fmt.Fprintf(w, "完成：status=%s provider=%s texts=%d%s\n",
			rep.Status, rep.ProviderUsed, rep.Texts, formatFallbackNote(rep),
		)
		for _, p := range rep.Outputs {
			fmt.Fprintf(w, "out: %s\n", p)
		}
		return
	}
	chain := formatAttemptChain(rep.Attempts, -1)
	if chain != "" {
		chain = " attempts=" + chain
	}
	fmt.Fprintf(w, "完成：status=%s error=%s%s\n", rep.Status, rep.ErrorKind, chain)
}
