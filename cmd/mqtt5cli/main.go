// mqtt5cli is a small publish/subscribe front-end for the client
// package, useful for poking at a broker from the command line.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/windtalker/mqtt5engine/client"
)

func main() {
	cmd := &cli.Command{
		Name:  "mqtt5cli",
		Usage: "MQTT v5.0 command line client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "tcp://localhost:1883",
				Usage:   "broker address (tcp://, tls://, ws:// or wss://)",
			},
			&cli.StringFlag{
				Name:  "client-id",
				Usage: "client identifier (random if omitted)",
			},
			&cli.StringFlag{
				Name:    "username",
				Aliases: []string{"u"},
				Usage:   "username for authentication",
			},
			&cli.StringFlag{
				Name:    "password",
				Aliases: []string{"p"},
				Usage:   "password for authentication",
			},
			&cli.DurationFlag{
				Name:  "keep-alive",
				Value: 60 * time.Second,
				Usage: "keep-alive interval",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log protocol chatter to stderr",
			},
		},
		Commands: []*cli.Command{
			pubCommand,
			subCommand,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

var pubCommand = &cli.Command{
	Name:      "pub",
	Usage:     "Publish a message to a topic",
	ArgsUsage: "TOPIC PAYLOAD",
	Flags: []cli.Flag{
		&cli.UintFlag{
			Name:    "qos",
			Aliases: []string{"q"},
			Value:   0,
			Usage:   "quality of service level (0, 1 or 2)",
		},
		&cli.BoolFlag{
			Name:    "retain",
			Aliases: []string{"r"},
			Usage:   "set the RETAIN flag",
		},
	},
	Action: pubAction,
}

func pubAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 2 {
		return fmt.Errorf("usage: mqtt5cli pub TOPIC PAYLOAD")
	}
	topic := cmd.Args().Get(0)
	payload := cmd.Args().Get(1)
	if cmd.Uint("qos") > 2 {
		return fmt.Errorf("invalid qos %d", cmd.Uint("qos"))
	}
	qos := client.QoS(cmd.Uint("qos"))

	c, err := dialFromFlags(cmd)
	if err != nil {
		return err
	}
	defer c.Disconnect(context.Background())

	var pubOpts []client.PublishOption
	if cmd.Bool("retain") {
		pubOpts = append(pubOpts, client.WithRetain())
	}
	tk := c.Publish(topic, []byte(payload), qos, pubOpts...)
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := tk.Wait(waitCtx); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	fmt.Printf("published %d bytes to %s (qos %d)\n", len(payload), topic, qos)
	return nil
}

var subCommand = &cli.Command{
	Name:      "sub",
	Usage:     "Subscribe to a topic filter and print received messages",
	ArgsUsage: "FILTER",
	Flags: []cli.Flag{
		&cli.UintFlag{
			Name:    "qos",
			Aliases: []string{"q"},
			Value:   0,
			Usage:   "maximum quality of service level",
		},
		&cli.UintFlag{
			Name:    "count",
			Aliases: []string{"n"},
			Usage:   "exit after this many messages (0 runs until interrupted)",
		},
	},
	Action: subAction,
}

func subAction(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() < 1 {
		return fmt.Errorf("usage: mqtt5cli sub FILTER")
	}
	filter := cmd.Args().Get(0)
	qos := client.QoS(cmd.Uint("qos"))
	limit := uint64(cmd.Uint("count"))

	c, err := dialFromFlags(cmd)
	if err != nil {
		return err
	}
	defer c.Disconnect(context.Background())

	messages := make(chan client.Message, 16)
	tk := c.Subscribe(filter, qos, func(_ *client.Client, msg client.Message) {
		messages <- msg
	})
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := tk.Wait(waitCtx); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "subscribed to %s, waiting for messages...\n", filter)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var seen uint64
	for {
		select {
		case msg := <-messages:
			fmt.Printf("%s %s\n", msg.Topic, string(msg.Payload))
			seen++
			if limit > 0 && seen >= limit {
				return nil
			}
		case <-sigCtx.Done():
			return nil
		}
	}
}

func dialFromFlags(cmd *cli.Command) (*client.Client, error) {
	opts := []client.Option{
		client.WithKeepAlive(cmd.Duration("keep-alive")),
	}
	if id := cmd.String("client-id"); id != "" {
		opts = append(opts, client.WithClientID(id))
	}
	if user := cmd.String("username"); user != "" {
		opts = append(opts, client.WithCredentials(user, cmd.String("password")))
	}
	if cmd.Bool("verbose") {
		opts = append(opts, client.WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	}

	server := cmd.String("server")
	if strings.HasPrefix(server, "ws://") || strings.HasPrefix(server, "wss://") {
		return client.DialWebSocket(server, opts...)
	}
	return client.Dial(server, opts...)
}
