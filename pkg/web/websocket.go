package web

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-perception/pkg/hub"
	"github.com/teslashibe/go-perception/pkg/protocol"
)

// handlePerceptionWS attaches a websocket to the hub
func (s *Server) handlePerceptionWS(c *websocket.Conn) {
	hub.NewClient(s.hub, c).Run()
}

// handleConnect greets a new client with the current settings
func (s *Server) handleConnect(c *hub.Client) {
	s.replyTo(c)(protocol.NewSettingsMessage(s.deps.Settings.Get()))
}

// handleMessage dispatches one client request
func (s *Server) handleMessage(c *hub.Client, data []byte) {
	reply := s.replyTo(c)

	msg, err := protocol.ParseMessage(data)
	if err != nil {
		reply(protocol.NewErrorMessage("Invalid JSON"))
		return
	}

	switch msg.Type {
	case protocol.TypeGetSettings:
		reply(protocol.NewSettingsMessage(s.deps.Settings.Get()))

	case protocol.TypeSetSettings:
		body := []byte(msg.Data)
		if len(body) == 0 {
			body = []byte("{}")
		}
		// Success is answered by the settings broadcast.
		if _, err := s.applySettings(body); err != nil {
			reply(protocol.NewErrorMessage(err.Error()))
		}

	case protocol.TypeRegisterFace:
		name := faceName(msg)
		if name == "" {
			reply(protocol.NewMessage(protocol.TypeFaceRegistered, nameRequired))
			return
		}
		_, err := s.registerFace(name)
		reply(protocol.NewFaceRegisteredMessage(name, displayError(err)))

	case protocol.TypeDeleteFace:
		name := faceName(msg)
		if name == "" {
			reply(protocol.NewMessage(protocol.TypeFaceDeleted, nameRequired))
			return
		}
		_, err := s.deleteFace(name)
		reply(protocol.NewFaceDeletedMessage(name, displayError(err)))

	case protocol.TypeListFaces:
		faces := map[string]int{}
		if s.deps.Faces != nil {
			faces = s.deps.Faces.List()
		}
		reply(protocol.NewFacesMessage(faces))

	case protocol.TypePing:
		reply(protocol.NewPongMessage())

	default:
		s.logger.Debug("unknown websocket message", "type", msg.Type, "client", c.ID())
		reply(protocol.NewErrorMessage(fmt.Sprintf("Unknown message type: %s", msg.Type)))
	}
}

var nameRequired = protocol.FaceResult{Success: false, Error: "Name is required"}

func faceName(msg *protocol.Message) string {
	req, err := msg.GetFaceRequest()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(req.Name)
}

// replyTo returns a sender for one client that accepts a message
// constructor's results directly.
func (s *Server) replyTo(c *hub.Client) func(*protocol.Message, error) {
	return func(msg *protocol.Message, err error) {
		if err != nil {
			s.logger.Error("build reply", "error", err)
			return
		}
		data, err := json.Marshal(msg)
		if err != nil {
			s.logger.Error("encode reply", "error", err)
			return
		}
		if !c.Send(hub.NewMessage(string(msg.Type), data)) {
			s.logger.Warn("reply dropped", "client", c.ID(), "type", msg.Type)
		}
	}
}

type clientError string

func (e clientError) Error() string { return string(e) }

// displayError rewrites err into the message shown to clients.
func displayError(err error) error {
	if err == nil {
		return nil
	}
	return clientError(faceError(err))
}
