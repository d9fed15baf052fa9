// Package hub 把房间的变更提示推送给 WebSocket 订阅者。
// 推送只是轮询的加速器：客户端收到提示后立即拉取一次，不依赖提示的完整性。
package hub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"collaborative-canvas/internal/domain"
	"collaborative-canvas/internal/repository"

	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 订阅者只会发送控制帧，上限可以很小
	maxMessageSize = 512
)

// Hub 内部消息类型
const (
	MsgRegister   = "register"
	MsgUnregister = "unregister"
	MsgNotice     = "notice"
)

// HubMessage 在 Hub 内部通道传递的消息
type HubMessage struct {
	Type   string
	Client *Client              // register/unregister
	Notice *domain.ChangeNotice // notice
}

// Hub 维护每个房间的订阅者集合，所有修改都在 Run 所在的 goroutine 中完成
type Hub struct {
	messageChan chan HubMessage

	// map[roomID]map[*Client]bool
	rooms   map[uint]map[*Client]bool
	roomsMu sync.RWMutex
}

var _ repository.ChangeNotifier = (*Hub)(nil)

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[uint]map[*Client]bool),
	}
}

// Run 处理内部消息直到 ctx 结束，应在单独的 goroutine 中运行
func (h *Hub) Run(ctx context.Context) {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info("Hub is shutting down...")
			return
		case msg := <-h.messageChan:
			switch msg.Type {
			case MsgRegister:
				h.registerClient(msg.Client)
			case MsgUnregister:
				h.unregisterClient(msg.Client)
			case MsgNotice:
				h.broadcast(msg.Notice)
			default:
				log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		}
	}
}

// Publish 把提示放入广播队列。单机部署时 Hub 直接作为 CanvasService 的 ChangeNotifier；
// 多实例部署时由 Redis 订阅者调用 Deliver。
func (h *Hub) Publish(_ context.Context, notice domain.ChangeNotice) error {
	h.Deliver(notice)
	return nil
}

// Deliver 非阻塞地投递一条提示，队列满时丢弃
func (h *Hub) Deliver(notice domain.ChangeNotice) {
	n := notice
	h.QueueMessage(HubMessage{Type: MsgNotice, Notice: &n})
}

// QueueMessage 非阻塞地把消息放入 Hub 的处理队列，队列满时返回 false
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ClientCount 某个房间当前的订阅者数量
func (h *Hub) ClientCount(roomID uint) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": client.RoomID(), "user_id": client.UserID()})

	h.roomsMu.Lock()
	if _, ok := h.rooms[client.RoomID()]; !ok {
		h.rooms[client.RoomID()] = make(map[*Client]bool)
	}
	h.rooms[client.RoomID()][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")
}

func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		return
	}
	roomID := client.RoomID()
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": client.UserID()})

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	roomClients, ok := h.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := roomClients[client]; !ok {
		return
	}
	delete(roomClients, client)
	// send 只在这里关闭，WritePump 随之退出
	close(client.send)
	if len(roomClients) == 0 {
		delete(h.rooms, roomID)
		logCtx.Debug("Room empty, removed from Hub")
	}
	logCtx.Info("Client unregistered from Hub")
}

func (h *Hub) closeAll() {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	for roomID, clients := range h.rooms {
		for client := range clients {
			close(client.send)
		}
		delete(h.rooms, roomID)
	}
}

func (h *Hub) broadcast(notice *domain.ChangeNotice) {
	if notice == nil {
		return
	}
	message, err := json.Marshal(notice)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal change notice")
		return
	}

	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	roomClients := h.rooms[notice.RoomID]
	if len(roomClients) == 0 {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": notice.RoomID, "recipient_count": len(roomClients)})
	logCtx.Debug("Broadcasting change notice")

	for client := range roomClients {
		// 慢客户端直接跳过，它的下一次轮询会补上
		select {
		case client.send <- message:
		default:
			logCtx.WithField("receiver_user_id", client.UserID()).Warn("Client send channel full during broadcast, skipping this client")
		}
	}
}
