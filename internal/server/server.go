package server

import (
	"net"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

// Server is the reference messaging backend: fiber REST endpoints plus the
// websocket entry point, sharing one hub and one store. The contact
// directory stands in for the friends collaborator.
type Server struct {
	App   *fiber.App
	Hub   *Hub
	Store *Store

	directory []chat.Contact
}

func New(jwtSecret string, directory []chat.Contact) *Server {
	store := NewStore()
	s := &Server{
		App:       fiber.New(fiber.Config{DisableStartupMessage: true}),
		Hub:       NewHub(store),
		Store:     store,
		directory: directory,
	}

	auth := JWTAuth(jwtSecret)

	s.App.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.App.Get("/ws", auth, websocket.New(s.registerHandler))

	api := s.App.Group("/api", auth)
	api.Get("/contacts", s.contactsHandler)
	api.Get("/conversations", s.snapshotHandler)
	api.Get("/conversations/:partnerID/messages", s.historyHandler)
	api.Post("/messages", s.sendHandler)
	api.Post("/messages/:id/read", s.readHandler)

	return s
}

// Run starts the hub loop and serves on ln. Takes a listener rather than an
// address so tests can bind to an ephemeral port.
func (s *Server) Run(ln net.Listener) error {
	go s.Hub.Run()
	return s.App.Listener(ln)
}
