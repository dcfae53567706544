package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(d deps) *cobra.Command {
	ctx := &commandContext{deps: d}

	rootCmd := &cobra.Command{
		Use:           "subfetch",
		Short:         "从字幕站点搜索并下载字幕",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&ctx.configFlag, "config", "c", "", "配置文件路径（默认 ~/.config/subfetch/config.toml）")
	pf.StringVar(&ctx.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	pf.StringVar(&ctx.logFormat, "log-format", "", "日志格式：console|json")
	pf.StringVar(&ctx.proxy, "proxy", "", "HTTP 代理 URL")
	pf.BoolVar(&ctx.insecure, "insecure", false, "跳过 TLS 证书校验（只作用于本次运行）")

	rootCmd.AddCommand(newDownloadCommand(ctx))
	rootCmd.AddCommand(newSearchCommand(ctx))
	rootCmd.AddCommand(newProvidersCommand(ctx))
	rootCmd.AddCommand(newServeCommand(ctx))

	return rootCmd
}
