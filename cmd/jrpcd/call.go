package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/spf13/cobra"

	"github.com/marrasen/jrpc"
)

var (
	callURL     string
	callNotify  bool
	callTimeout time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call METHOD [PARAMS]",
	Short: "Call a method on a jrpcd server",
	Long: `The call command dials a server over WebSocket, sends one call or notification and
prints the result. PARAMS must be a JSON value.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if callURL != "" {
			cfg.URL = callURL
		}

		var params any
		if len(args) == 2 {
			raw, err := jrpc.Decode([]byte(args[1]))
			if err != nil {
				return fmt.Errorf("params: %w", err)
			}
			params = raw
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
		defer cancel()

		conn, err := jrpc.Dial(ctx, cfg.URL, jrpc.DialOptions{
			Engine: jrpc.Options{Logger: newLogger(cfg)},
		})
		if err != nil {
			return err
		}
		defer conn.Close()

		if callNotify {
			return conn.Notify(args[0], params)
		}

		var result jsontext.Value
		if err := conn.Call(ctx, args[0], params, &result); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(result))
		return nil
	},
}

func init() {
	callCmd.Flags().StringVar(&callURL, "url", "", "server URL (default from JRPC_URL)")
	callCmd.Flags().BoolVar(&callNotify, "notify", false, "send a notification and do not wait")
	callCmd.Flags().DurationVar(&callTimeout, "timeout", 10*time.Second, "how long to wait for the result")
}
