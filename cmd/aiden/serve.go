package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aidenhq/aiden/server"
)

func newServeCmd(cfgPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assistant HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := wireApp(*cfgPath)
			if err != nil {
				return err
			}

			if addr == "" {
				addr = a.cfg.Server.Addr
			}

			srv := server.New(a.loop, func(o *server.Options) {
				o.Logger = a.logger
				o.Transcriber = a.stt
				o.Synthesizer = a.tts
				o.VoiceConfig = a.voiceConfig()
			})

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Listen(addr)
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case s := <-sig:
				a.logger.Info("shutting down", "signal", s.String())
				return srv.Shutdown()
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}
