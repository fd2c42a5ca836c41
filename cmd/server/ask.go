package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lk2023060901/agent-bridge/internal/serving"
)

const tokenEnv = "AGENT_BRIDGE_PLATFORM_TOKEN"

func newAskCmd() *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Send one question to the serving endpoint and print the returned messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, platformToken, err := newServingClient(token)
			if err != nil {
				return err
			}

			msgs, err := client.Invoke(cmd.Context(), strings.Join(args, " "), nil, platformToken)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), msgs)
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "platform (Entra ID) access token, defaults to $"+tokenEnv)
	return cmd
}

func newSpaceCmd() *cobra.Command {
	var (
		token          string
		conversationID string
	)

	cmd := &cobra.Command{
		Use:   "space <question>",
		Short: "Ask the configured agent space a question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, platformToken, err := newServingClient(token)
			if err != nil {
				return err
			}
			if client.Config().SpaceID == "" {
				return errors.New("serving.space_id is not configured")
			}

			answer, err := client.AskSpace(cmd.Context(), strings.Join(args, " "), conversationID, platformToken)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer.Result)
			fmt.Fprintf(cmd.ErrOrStderr(), "conversation: %s\n", answer.ConversationID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&token, "token", "t", "", "platform (Entra ID) access token, defaults to $"+tokenEnv)
	cmd.Flags().StringVar(&conversationID, "conversation", "", "continue an existing space conversation")
	return cmd
}

func newServingClient(token string) (*serving.Client, string, error) {
	config, log, err := loadConfig()
	if err != nil {
		return nil, "", err
	}

	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token == "" {
		return nil, "", fmt.Errorf("a platform token is required (--token or $%s)", tokenEnv)
	}

	client, err := serving.New(&config.Serving, log)
	if err != nil {
		return nil, "", err
	}
	return client, token, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
