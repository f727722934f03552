package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-hub/client"
	"chat-hub/domain/event"
	"chat-hub/logs"

	"github.com/Netflix/go-env"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=ws://localhost:8080/ws"`
	UserID    string `env:"CHAT_USER_ID,required=true"`
	PeerID    string `env:"CHAT_PEER_ID"`
	GroupID   int64  `env:"CHAT_GROUP_ID"`
	LogLevel  string `env:"LOG_LEVEL,required=true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run owns the client lifecycle: connect with retries, print inbound
// frames, and forward stdin lines as messages until Ctrl+C.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if config.PeerID == "" && config.GroupID == 0 {
		return exitConfig, fmt.Errorf("set CHAT_PEER_ID or CHAT_GROUP_ID")
	}
	log := logs.FromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	url := fmt.Sprintf("%s?userId=%s", config.ServerURL, config.UserID)
	c := client.New(client.Options{URL: url, Log: log})
	defer c.Close()

	sub := c.OnFrame(func(frame event.Frame) {
		switch frame.Type {
		case event.TypeMessage:
			if frame.Message != nil {
				fmt.Printf("[%s] %s: %s\n",
					frame.Message.Timestamp.Format(time.TimeOnly),
					frame.Message.SenderID,
					frame.Message.Content)
			}
		case event.TypeTyping:
			if frame.IsTyping {
				fmt.Printf("... %s is typing\n", frame.UserID)
			}
		case event.TypePresence:
			state := "offline"
			if frame.IsOnline {
				state = "online"
			}
			fmt.Printf("* %s is %s\n", frame.UserID, state)
		case event.TypeError:
			fmt.Printf("! rejected (%s): %s\n", frame.Code, frame.Error)
		}
	})
	defer sub.Cancel()

	// Stdin lines become outbound messages.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			content := strings.TrimSpace(scanner.Text())
			if content == "" {
				continue
			}
			if _, err := c.SendMessage(config.UserID, config.PeerID, config.GroupID, content); err != nil {
				log.Warn("Send failed", "error", err)
			}
		}
	}()

	log.Info("Connecting", "url", config.ServerURL, "user", config.UserID)
	if err := c.Run(ctx); err != nil && ctx.Err() == nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
