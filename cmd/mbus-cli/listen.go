package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/beanfork/mbus/internal/bridge"
	"github.com/beanfork/mbus/internal/pubsub"
)

func newListenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen [TOPIC]",
		Short: "Subscribe to a topic and print every message",
		Long: `Subscribe to a topic and print each received message as one JSON
line. With no topic, subscribes to the catch-all topic and prints
everything the broker relays.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			topic := pubsub.T()
			if len(args) == 1 {
				topic = parseTopic(args[0])
			}
			return runListen(topic)
		},
	}
	return cmd
}

func runListen(topic pubsub.Topic) error {
	desc, key, err := loadDescriptor()
	if err != nil {
		return err
	}

	ps := pubsub.New()
	ps.Subscribe(topic, func(t pubsub.Topic, fields pubsub.Fields) error {
		line, err := json.Marshal(map[string]any{
			"topic":  []string(t),
			"fields": fields,
		})
		if err != nil {
			return err
		}
		fmt.Println(string(line))
		return nil
	})

	br, err := bridge.Dial(context.Background(), desc.URL(), key, ps)
	if err != nil {
		return err
	}
	defer br.Close()

	fmt.Fprintf(os.Stderr, "listening on %s (ctrl-c to stop)\n", topic)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	select {
	case <-stop:
		return nil
	case <-br.Done():
		return br.Err()
	}
}
