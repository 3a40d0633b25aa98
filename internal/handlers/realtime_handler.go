package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"readalong/internal/credentials"
	"readalong/internal/models"
	"readalong/internal/protocol"
	"readalong/internal/realtime"
)

// RealtimeHandler relays session channel traffic between websocket clients
// through a Hub.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler creates a new realtime handler
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Connect upgrades the request and joins the named channel. A client
// presence-join frame tracks the connection; presence-leave frames are
// ignored because the hub synthesizes them when the socket closes.
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")
	code, ok := models.SessionCodeFromChannel(channel)
	if !ok || credentials.ValidateSessionCode(code) != nil {
		respondWithError(w, r, http.StatusNotFound, "unknown channel", "", nil)
		return
	}

	member, err := h.hub.Join(channel)
	if err != nil {
		respondWithError(w, r, http.StatusConflict, "session already has two readers", "", nil)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		member.Leave()
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("websocket_accept_failed")
		return
	}

	log := zerolog.Ctx(r.Context()).With().
		Str("channel", channel).
		Str("member", member.ID()).
		Logger()
	log.Debug().Msg("member_joined")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	go func() {
		defer cancel()
		h.writeLoop(ctx, conn, member, log)
	}()

	h.readLoop(ctx, conn, member, log)
	member.Leave()
	conn.Close(websocket.StatusNormalClosure, "")
	log.Debug().Msg("member_left")
}

func (h *RealtimeHandler) readLoop(ctx context.Context, conn *websocket.Conn, member *realtime.Member, log zerolog.Logger) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				log.Debug().Err(err).Msg("member_read_ended")
			}
			return
		}

		ev, err := protocol.Decode(data)
		if err != nil {
			log.Warn().Err(err).Msg("frame_rejected")
			continue
		}

		switch ev.Kind {
		case protocol.KindPresenceJoin:
			member.Track(*ev.Presence)
		case protocol.KindPresenceLeave:
		default:
			member.Broadcast(ev)
		}
	}
}

func (h *RealtimeHandler) writeLoop(ctx context.Context, conn *websocket.Conn, member *realtime.Member, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-member.Events():
			if !ok {
				return
			}
			data, err := protocol.Encode(ev)
			if err != nil {
				log.Warn().Err(err).Msg("frame_encode_failed")
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				log.Debug().Err(err).Msg("member_write_failed")
				return
			}
		}
	}
}
