package websocket

import (
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/prreel/api/internal/logger"
	"github.com/prreel/api/internal/model"
)

// Client is one subscriber to a job's progress stream
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub fans job events out to the clients subscribed to that job
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
}

// BroadcastMessage is an encoded event addressed to one job's subscribers
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run owns the subscription map; all mutations happen on this goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			logger.Job(client.JobID).Debug("websocket subscriber registered")

		case client := <-h.unregister:
			h.remove(client)
			logger.Job(client.JobID).Debug("websocket subscriber unregistered")

		case msg := <-h.broadcast:
			for client := range h.clients[msg.JobID] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow consumer
					h.remove(client)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.JobID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.JobID)
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// JobProgress publishes the job's current status and step
func (h *Hub) JobProgress(job *model.Job) {
	h.publish(job.ID, model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		JobID:       job.ID,
		Progress:    job.Progress,
		Status:      job.Status,
		CurrentStep: job.CurrentStep,
	})
}

// JobComplete publishes the finished video links
func (h *Hub) JobComplete(job *model.Job) {
	h.publish(job.ID, model.WSCompleteMessage{
		Type:         model.WSMessageTypeComplete,
		JobID:        job.ID,
		VideoURL:     job.VideoURL,
		ThumbnailURL: job.ThumbnailURL,
		ShareID:      job.ShareID,
	})
}

// JobFailed publishes the recorded error message
func (h *Hub) JobFailed(job *model.Job) {
	msg := ""
	if job.ErrorMessage != nil {
		msg = *job.ErrorMessage
	}
	h.publish(job.ID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: job.ID,
		Error: model.WSError{Code: "JOB_FAILED", Message: msg},
	})
}

// publish never blocks the pipeline; events are dropped when the hub is saturated
func (h *Hub) publish(jobID string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Job(jobID).WithError(err).Error("failed to marshal websocket message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
	default:
		logger.Job(jobID).Warn("websocket broadcast queue full, dropping event")
	}
}

// HandleConnection serves one subscriber until it disconnects
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Job(jobID).WithError(err).Warn("websocket read error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- data:
			default:
			}
		}
	}
}
