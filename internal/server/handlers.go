package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/shannonnonshan/streamland-messaging/internal/chat"
)

// registerHandler GET /ws?token=
func (s *Server) registerHandler(c *websocket.Conn) {
	userID, _ := c.Locals("userID").(string)
	if userID == "" {
		_ = c.Close()
		return
	}
	cl := &client{userID: userID, conn: c, send: make(chan []byte, 16), hub: s.Hub}
	s.Hub.register <- cl
	defer func() { s.Hub.unregister <- cl }()
	go cl.writePump()
	cl.readPump()
}

// contactsHandler GET /api/contacts
func (s *Server) contactsHandler(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	out := make([]chat.Contact, 0, len(s.directory))
	for _, contact := range s.directory {
		if contact.ID == userID {
			continue
		}
		out = append(out, contact)
	}
	return c.JSON(out)
}

// snapshotHandler GET /api/conversations
func (s *Server) snapshotHandler(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	return c.JSON(s.Store.Snapshot(userID))
}

// historyHandler GET /api/conversations/:partnerID/messages
func (s *Server) historyHandler(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	partnerID := c.Params("partnerID")
	if partnerID == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	return c.JSON(s.Store.History(userID, partnerID))
}

// sendHandler POST /api/messages — the REST leg of the polling transport
// strategy. Delivery goes through the same hub path as socket sends.
func (s *Server) sendHandler(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	var f chat.Frame
	if err := c.BodyParser(&f); err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	if f.To == "" || f.Content == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	msg := s.Hub.Deliver(userID, f)
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// readHandler POST /api/messages/:id/read
func (s *Server) readHandler(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	id := c.Params("id")
	if id == "" {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	s.Store.MarkRead(id, userID)
	return c.SendStatus(fiber.StatusNoContent)
}
