package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/config"
	"github.com/shannonnonshan/streamland-messaging/internal/rest"
	"github.com/shannonnonshan/streamland-messaging/internal/server"
	"github.com/shannonnonshan/streamland-messaging/internal/session"
	"github.com/shannonnonshan/streamland-messaging/internal/transport"
)

// chat is a minimal terminal client over the messaging session, mainly for
// poking at a running messagingd.
//
//	/list            print the conversation list
//	/open <partner>  open a conversation and print its history
//	/close           close the open conversation
//	<text>           send to the open partner
func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chat <user-id>")
		os.Exit(1)
	}
	userID := os.Args[1]
	cfg := config.Load()

	token, err := server.MintToken(cfg.JWTSecret, userID)
	if err != nil {
		log.Fatal().Err(err).Msg("mint token")
	}

	channel, err := transport.NewWebsocketChannel(cfg.ServerURL, token)
	if err != nil {
		log.Fatal().Err(err).Msg("bad server url")
	}
	api := rest.NewClient(cfg.ServerURL, token)
	sess := session.New(userID, channel, api, cfg.TypingDebounce)

	ctx := context.Background()
	if err := sess.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("session start failed")
	}
	defer sess.Close()

	sess.Pane.OnChange(func() {
		if sess.Pane.State() != "ready" {
			return
		}
		history := sess.Pane.History()
		if len(history) > 0 {
			last := history[len(history)-1]
			fmt.Printf("[%s] %s: %s\n", last.CreatedAt.Format("15:04:05"), last.SenderID, last.Content)
		}
	})

	fmt.Printf("connected as %s\n", userID)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/list":
			for _, v := range sess.Conversations() {
				marker := " "
				if v.Online {
					marker = "*"
				}
				last := ""
				if v.LastMessage != nil {
					last = v.LastMessage.Content
				}
				fmt.Printf("%s %-12s unread=%d  %s\n", marker, v.DisplayName, v.UnreadCount, last)
			}
		case strings.HasPrefix(line, "/open "):
			partner := strings.TrimSpace(strings.TrimPrefix(line, "/open "))
			if err := sess.OpenConversation(ctx, partner); err != nil {
				fmt.Fprintln(os.Stderr, "open failed:", err)
				continue
			}
			for _, m := range sess.Pane.History() {
				fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.SenderID, m.Content)
			}
		case line == "/close":
			sess.CloseConversation()
		default:
			sess.Typing.NotifyStop()
			if _, err := sess.Pane.Send(line); err != nil {
				fmt.Fprintln(os.Stderr, "send failed:", err)
			}
		}
	}
}
