package main

import (
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/subfetch/internal/config"
	"github.com/John-Robertt/subfetch/internal/infra/httpx"
	"github.com/John-Robertt/subfetch/internal/logging"
	"github.com/John-Robertt/subfetch/internal/provider"
)

// deps 是命令依赖的外部环境；测试中替换为临时目录与本地站点。
type deps struct {
	env         func(known []string) config.Env
	newRegistry func(eff config.EffectiveConfig) (provider.Registry, error)
	isTerminal  func(w io.Writer) bool
}

func defaultDeps() deps {
	return deps{
		env:         config.OSEnv,
		newRegistry: buildRegistry,
		isTerminal:  isTerminal,
	}
}

type commandContext struct {
	deps deps

	configFlag string
	logLevel   string
	logFormat  string
	proxy      string
	insecure   bool
}

// session 是一次命令执行所需的全部运行时对象。
type session struct {
	eff    config.EffectiveConfig
	log    *slog.Logger
	client *http.Client
	reg    provider.Registry
}

// cliArgs 把全局 flag 并入子命令给出的 CLIArgs，并记录哪些项被显式指定。
func (c *commandContext) cliArgs(cmd *cobra.Command, cli config.CLIArgs) config.CLIArgs {
	flags := cmd.Flags()
	cli.ConfigPath = c.configFlag
	cli.LogLevel, cli.LogLevelSet = c.logLevel, flags.Changed("log-level")
	cli.LogFormat, cli.LogFormatSet = c.logFormat, flags.Changed("log-format")
	cli.ProxyURL, cli.ProxyURLSet = c.proxy, flags.Changed("proxy")
	cli.Insecure, cli.InsecureSet = c.insecure, flags.Changed("insecure")
	return cli
}

func (c *commandContext) loadConfig(cmd *cobra.Command, cli config.CLIArgs) (config.EffectiveConfig, error) {
	return config.LoadEffective(c.deps.env(knownProviders()), c.cliArgs(cmd, cli))
}

func (c *commandContext) open(cmd *cobra.Command, cli config.CLIArgs) (*session, error) {
	eff, err := c.loadConfig(cmd, cli)
	if err != nil {
		return nil, err
	}
	return c.openWith(cmd, eff)
}

func (c *commandContext) openWith(cmd *cobra.Command, eff config.EffectiveConfig) (*session, error) {
	log, err := logging.New(logging.Options{
		Level:  eff.LogLevel,
		Format: eff.LogFormat,
		Writer: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: err}
	}
	client, err := httpx.New(eff.HTTP)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: err}
	}
	reg, err := c.deps.newRegistry(eff)
	if err != nil {
		return nil, err
	}
	return &session{eff: eff, log: log, client: client, reg: reg}, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
