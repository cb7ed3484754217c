package main

import (
	"net"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
	"github.com/shannonnonshan/streamland-messaging/internal/config"
	"github.com/shannonnonshan/streamland-messaging/internal/server"
)

// demo directory; the friends collaborator supplies this in production
var directory = []chat.Contact{
	{ID: "alice", DisplayName: "Alice Nguyen", Role: chat.RoleStudent},
	{ID: "bob", DisplayName: "Bob Tran", Role: chat.RoleStudent},
	{ID: "carol", DisplayName: "Carol Pham", Role: chat.RoleTeacher},
	{ID: "dave", DisplayName: "Dave Le", Role: chat.RoleAdmin},
}

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.Load()
	srv := server.New(cfg.JWTSecret, directory)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.ListenAddr).Msg("listen failed")
	}
	log.Info().Str("addr", cfg.ListenAddr).Msg("messaging server listening")
	if err := srv.Run(ln); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
