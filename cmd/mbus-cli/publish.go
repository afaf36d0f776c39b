package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/beanfork/mbus/internal/bridge"
	"github.com/beanfork/mbus/internal/pubsub"
)

func newPublishCommand() *cobra.Command {
	var fieldsJSON string

	cmd := &cobra.Command{
		Use:   "publish TOPIC",
		Short: "Publish a message to a topic",
		Long: `Publish a message to a topic. The topic is dot-separated
("chat.messages"); an empty string is the broadcast topic. Fields are
given as a JSON object.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(args[0], fieldsJSON)
		},
	}

	cmd.Flags().StringVar(&fieldsJSON, "fields", "{}", "message fields as a JSON object")
	return cmd
}

func runPublish(topicArg, fieldsJSON string) error {
	var fields pubsub.Fields
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return fmt.Errorf("invalid --fields JSON: %w", err)
	}

	desc, key, err := loadDescriptor()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ps := pubsub.New()
	br, err := bridge.Dial(ctx, desc.URL(), key, ps)
	if err != nil {
		return err
	}
	defer br.Close()

	if err := ps.Publish(parseTopic(topicArg), fields); err != nil {
		return err
	}

	fmt.Printf("published to %s\n", parseTopic(topicArg))
	return nil
}

// parseTopic splits a dot-separated topic argument into its elements.
// The empty string is the broadcast topic.
func parseTopic(arg string) pubsub.Topic {
	if arg == "" {
		return pubsub.T()
	}
	return pubsub.Topic(strings.Split(arg, "."))
}
