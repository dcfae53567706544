package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/subfetch/internal/config"
	"github.com/John-Robertt/subfetch/internal/domain"
	"github.com/John-Robertt/subfetch/internal/server"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.open(cmd, config.CLIArgs{
				ServerAddr:    addr,
				ServerAddrSet: cmd.Flags().Changed("addr"),
			})
			if err != nil {
				return err
			}

			api := server.New(server.Options{
				Registry:  sess.reg,
				Client:    sess.client,
				Logger:    sess.log,
				Providers: sess.eff.Providers,
				Defaults: domain.QueryOptions{
					Language:          sess.eff.Language,
					Match:             sess.eff.Match,
					LanguageThreshold: sess.eff.LanguageThreshold,
				},
			})
			srv := &http.Server{
				Addr:              sess.eff.ServerAddr,
				Handler:           api.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
				// 收到信号时让 SSE 等长连接的请求 context 一起结束。
				BaseContext: func(net.Listener) context.Context { return cmd.Context() },
			}

			errCh := make(chan error, 1)
			go func() {
				sess.log.Info("http api 已启动", "addr", srv.Addr, "providers", sess.eff.Providers)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sess.log.Info("http api 正在关闭")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "监听地址（默认 "+config.DefaultServerAddr+"）")
	return cmd
}
