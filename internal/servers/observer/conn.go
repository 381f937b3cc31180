package observer

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamsight/streamsight/internal/asyncwriter"
	"github.com/streamsight/streamsight/internal/defs"
	"github.com/streamsight/streamsight/internal/logger"
	"github.com/streamsight/streamsight/internal/protocols/ws"
)

const (
	connWriteQueueSize = 16
)

type conn struct {
	parent *Server
	wc     *ws.ServerConn

	uuid   uuid.UUID
	writer *asyncwriter.Writer

	mutex        sync.Mutex
	subscription string // empty means every stream
}

func (c *conn) initialize() {
	c.uuid = uuid.New()
	c.writer = asyncwriter.New(connWriteQueueSize, c)

	c.Log(logger.Info, "opened from %v", c.wc.RemoteAddr())

	c.parent.addConn(c)
	c.parent.wg.Add(1)
	go c.run()
}

// Log implements logger.Writer.
func (c *conn) Log(level logger.Level, format string, args ...interface{}) {
	c.parent.Log(level, "[conn %s] "+format, append([]interface{}{c.uuid}, args...)...)
}

func (c *conn) run() {
	defer c.parent.wg.Done()

	err := c.runInner()

	c.parent.removeConn(c)
	c.wc.Close()

	c.Log(logger.Info, "closed: %v", err)
}

func (c *conn) runInner() error {
	c.push(map[string]interface{}{
		"type":      "connected",
		"message":   "detection stream ready",
		"timestamp": time.Now().UnixMilli(),
	})

	c.writer.Start()

	readErr := make(chan error)
	go func() {
		readErr <- c.readLoop()
	}()

	select {
	case err := <-readErr:
		c.writer.Stop()
		return err

	case err := <-c.writer.Error():
		c.wc.Close()
		<-readErr
		return err

	case <-c.parent.ctx.Done():
		c.wc.Close()
		<-readErr
		c.writer.Stop()
		return fmt.Errorf("terminated")
	}
}

func (c *conn) readLoop() error {
	for {
		var msg struct {
			Type     string `json:"type"`
			ClientID string `json:"client_id"`
		}
		err := c.wc.ReadJSON(&msg)
		if err != nil {
			return err
		}

		switch msg.Type {
		case "ping":
			c.push(map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().UnixMilli(),
			})

		case "subscribe":
			c.setSubscription(msg.ClientID)
			c.push(map[string]interface{}{
				"type":      "subscribed",
				"client_id": msg.ClientID,
			})

		case "get_status":
			list := c.parent.Source.APISessionsList()
			c.push(map[string]interface{}{
				"type":           "status",
				"active_clients": list.Count,
				"streams":        list.Sessions,
				"timestamp":      time.Now().UnixMilli(),
			})

		default:
			c.push(map[string]interface{}{
				"type":    "error",
				"message": fmt.Sprintf("unknown message type '%s'", msg.Type),
			})
		}
	}
}

func (c *conn) setSubscription(clientID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.subscription = clientID
}

func (c *conn) subscriptionRef() string {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.subscription
}

// broadcast queues one detection update per matching entry.
func (c *conn) broadcast(entries []defs.DetectionEntry) {
	sub := c.subscriptionRef()

	for _, entry := range entries {
		if sub != "" && sub != entry.ClientID {
			continue
		}

		entry := entry
		c.push(map[string]interface{}{
			"type":      "detection_update",
			"client_id": entry.ClientID,
			"data":      entry.Summary,
			"timestamp": time.Now().UnixMilli(),
		})
	}
}

func (c *conn) push(msg map[string]interface{}) {
	c.writer.Push(func() error {
		return c.wc.WriteJSON(msg)
	})
}
