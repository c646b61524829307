package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"brokerlink/internal/models"
	"brokerlink/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул буферов для сериализации broadcast сообщений.
// Убирает аллокации на каждый Broadcast при активной синхронизации.
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// AccountUpdateMessage - обновление снимка торгового счета
//
// Отправляется после каждой успешной синхронизации подключения.
type AccountUpdateMessage struct {
	Type         string                         `json:"type"`
	ConnectionID int                            `json:"connection_id"`
	Data         *models.TradingPlatformAccount `json:"data"`
}

// SyncResultMessage - результат цикла синхронизации подключения
type SyncResultMessage struct {
	Type         string `json:"type"`
	ConnectionID int    `json:"connection_id"`
	Venue        string `json:"venue"`
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
}

// Hub управляет всеми активными WebSocket соединениями
//
// Центральный менеджер для broadcast сообщений всем подключенным клиентам.
// Frontend получает обновления счетов и результаты синхронизации
// в реальном времени, без polling.
//
// Использование:
// 1. Создать hub: hub := NewHub()
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.BroadcastAccountUpdate(...)
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Сигнал остановки главного цикла
	stop chan struct{}

	// Счетчик сообщений, отброшенных при переполнении broadcast канала
	dropped atomic.Int64

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast.
// Завершается после вызова Stop().
func (h *Hub) Run() {
	logger := utils.L().WithComponent("websocket").Sugar()

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			logger.Infow("client connected", "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			logger.Infow("client disconnected", "total", total)

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock,
			// отправляем без блокировки, медленных удаляем под Write Lock.
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// Клиент не успевает читать - отключаем
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				logger.Warnw("removed slow clients", "removed", len(toRemove), "total", total)
			}
		}
	}
}

// Stop останавливает главный цикл и закрывает все соединения
func (h *Hub) Stop() {
	close(h.stop)
}

// Broadcast сериализует сообщение и рассылает его всем клиентам
//
// Неблокирующий: при переполнении broadcast канала сообщение
// отбрасывается, чтобы медленный hub не тормозил синхронизацию.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		utils.L().WithComponent("websocket").Sugar().Errorw("marshal broadcast message", "error", err)
		jsonBufferPool.Put(buf)
		return
	}

	// Убираем trailing newline от Encode
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	// Копируем данные, буфер возвращается в пул
	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- msgCopy:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastAccountUpdate отправляет свежий снимок счета после синхронизации
func (h *Hub) BroadcastAccountUpdate(connectionID int, account *models.TradingPlatformAccount) {
	h.Broadcast(&AccountUpdateMessage{
		Type:         "accountUpdate",
		ConnectionID: connectionID,
		Data:         account,
	})
}

// BroadcastSyncResult отправляет итог цикла синхронизации подключения
func (h *Hub) BroadcastSyncResult(connectionID int, venue string, success bool, errMessage string) {
	h.Broadcast(&SyncResultMessage{
		Type:         "syncResult",
		ConnectionID: connectionID,
		Venue:        venue,
		Success:      success,
		Error:        errMessage,
	})
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает количество отброшенных broadcast сообщений
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
