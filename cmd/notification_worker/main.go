package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	channelSMS      = "sms"
	channelTelegram = "telegram"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configName string

	rootCmd := &cobra.Command{
		Use:           "notification_worker",
		Short:         "Delivers certificate notifications from Kafka to SMS and Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configName, "config", "c", "notification_worker",
		"config name, read from <name>.env in ./configs or the working directory")

	rootCmd.AddCommand(channelCmd(&configName, channelSMS, "Deliver charge confirm codes by SMS", channelSMS))
	rootCmd.AddCommand(channelCmd(&configName, channelTelegram, "Deliver certificate cards to Telegram chats", channelTelegram))
	rootCmd.AddCommand(channelCmd(&configName, "all", "Run every delivery channel in one process", channelSMS, channelTelegram))

	return rootCmd
}

func channelCmd(configName *string, use, short string, channels ...string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), *configName, channels)
		},
	}
}
