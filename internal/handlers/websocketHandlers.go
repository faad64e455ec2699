package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"squadforge-backend/internal/common"
	"squadforge-backend/internal/messages"
	"squadforge-backend/internal/models"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// https://github.com/gorilla/websocket/blob/main/examples/chat/client.go#L35
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func init() {
	// Allow all origins
	wsUpgrader.CheckOrigin = func(r *http.Request) bool {
		return true
	}
}

// CreateWSHandler returns the realtime stream handler. Each connection
// subscribes to the user's Redis channel and forwards notification,
// announcement and presence messages as they are published.
func CreateWSHandler(server *common.ServerState) echo.HandlerFunc {
	return func(c echo.Context) error {
		ws, err := wsUpgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return err
		}
		defer ws.Close()

		// Get user from context
		email, err := server.JwtIssuer.GetUserEmail(c)
		if err != nil {
			return err
		}

		user, err := models.GetUserByEmail(server.DB, email)
		if err != nil {
			return err
		}

		// Create a cancellable context that will be used to cleanup resources
		ctx, cancel := context.WithCancel(c.Request().Context())
		defer cancel()

		// Subscribe to Redis channel for user updates
		pubsub := server.Redis.Subscribe(ctx, user.GetRedisChannel())
		defer func() {
			pubsub.Close()
			cancel()
		}()

		// Successful connection message
		success := messages.NewSuccessMessage("Successful connection for user: " + user.GamerTag)

		s, err := json.Marshal(success)
		if err != nil {
			c.Logger().Error(err)
		}
		err = ws.WriteMessage(websocket.TextMessage, s)
		if err != nil {
			c.Logger().Errorf("Error writing initial websocket message: %v", err)
			return err
		}

		// Use done channel to signal when the connection is closed
		done := make(chan struct{})

		// Tell online teammates across the user's active teams that we are here
		announcePresence(c, server, ctx, user)

		// Websocket read loop
		go func() {
			defer func() {
				close(done)
				cancel() // Cancel context when websocket closes
			}()
			for {
				messageType, msg, err := ws.ReadMessage()
				if err != nil {
					if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
						c.Logger().Debug("WebSocket connection closed normally")
					} else {
						c.Logger().Error("WebSocket read error: ", err)
					}
					done <- struct{}{}
					return
				}

				if messageType != websocket.TextMessage {
					c.Logger().Warn("Received non-text message in websocket")
					continue
				}

				parsedMessage, err := messages.ParseMessage(msg)
				if err != nil {
					sendWSErrorMessage(ws, err.Error())
					continue
				}

				switch {
				case parsedMessage.Ping != nil:
					// Handle ping message
					c.Logger().Debug("Received ping")
					pong := messages.NewPongMessage()
					pongJSON, err := json.Marshal(pong)
					if err != nil {
						c.Logger().Error(err)
						return
					}
					err = ws.WriteMessage(websocket.TextMessage, pongJSON)
					if err != nil {
						c.Logger().Error(err)
						return
					}
				case parsedMessage.TeammateOnlineMessage != nil:
					// Handle user online message
					c.Logger().Info("Received user online message ", parsedMessage.TeammateOnlineMessage.Payload.TeammateID, " ", user.ID)
					publishTeammateOnlineMessage(c, server, user.ID, parsedMessage.TeammateOnlineMessage.Payload.TeammateID)
				default:
					c.Logger().Warn("Unknown message type")
				}

			}
		}()

		// Redis message loop
		go func() {
			defer cancel() // Ensure context is cancelled if this goroutine exits first
			for {
				select {
				case <-ctx.Done():
					return
				case <-done:
					c.Logger().Warnf("Redis subscription closed for user: %s\n", user.GamerTag)
					return
				default:
					msg, err := pubsub.ReceiveMessage(ctx)
					if err != nil {
						select {
						case <-ctx.Done():
							// Context was cancelled, this is normal shutdown
							return
						default:
							if err == redis.ErrClosed {
								done <- struct{}{}
								return
							}
							// Only log truly unexpected errors
							if err.Error() != "use of closed network connection" {
								c.Logger().Error("Unexpected Redis error: ", err)
							}
							done <- struct{}{}
							return
						}
					}

					parsedMessage, err := messages.ParseMessage([]byte(msg.Payload))
					if err != nil {
						c.Logger().Error(err)
						continue
					}

					switch {
					case parsedMessage.Notification != nil,
						parsedMessage.Announcement != nil,
						parsedMessage.TeammateOnlineMessage != nil:
						// Forward to the connected client as-is
						err = ws.WriteMessage(websocket.TextMessage, []byte(msg.Payload))
						if err != nil {
							c.Logger().Error(err)
						}
					default:
						c.Logger().Warn("Unknown message type")
					}
				}
			}
		}()

		// Wait for connection to close
		<-done
		return nil
	}
}

func sendWSErrorMessage(ws *websocket.Conn, message string) {
	msg := messages.NewErrorMessage(message)
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return
	}
	ws.WriteMessage(websocket.TextMessage, msgJSON)
}

// announcePresence pings every online active teammate of the user, across
// all teams where the user is an active member.
func announcePresence(c echo.Context, s *common.ServerState, ctx context.Context, user *models.User) {
	memberships, err := user.Memberships(s.DB)
	if err != nil {
		c.Logger().Error(err)
		return
	}

	notified := map[string]bool{user.ID: true}
	for _, membership := range memberships {
		if membership.Status != models.MemberStatusActive || membership.Team == nil {
			continue
		}
		teammates, err := membership.Team.ActiveMembers(s.DB)
		if err != nil {
			c.Logger().Error(err)
			continue
		}
		for _, teammate := range teammates {
			if notified[teammate.UserID] {
				continue
			}
			notified[teammate.UserID] = true

			// Only ping teammates that hold an open subscription
			channels, err := s.Redis.PubSubChannels(ctx, common.GetUserChannel(teammate.UserID)).Result()
			if err != nil {
				c.Logger().Error(err)
				continue
			}
			if len(channels) > 0 {
				c.Logger().Info("Notify teammate: ", teammate.UserID, " that user: ", user.ID, " is online")
				publishTeammateOnlineMessage(c, s, user.ID, teammate.UserID)
			}
		}
	}
}

func publishTeammateOnlineMessage(ctx echo.Context, s *common.ServerState, userID, teammateID string) {
	// Ping the teammate that user is online
	msg := messages.NewTeammateOnlineMessage(userID)
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		ctx.Logger().Error(err)
		return
	}

	s.Redis.Publish(context.Background(), common.GetUserChannel(teammateID), msgJSON)
}
