package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"tradebridge/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Пул буферов сериализации: Broadcast вызывается на каждый шаг логина
// и каждую сделку, не хотим аллокацию на каждое сообщение
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями.
//
// Центральная точка рассылки real-time обновлений frontend'у:
// прогресс подключения к платформе, результаты сделок, изменения
// списка платформ. Клиенты подключаются на /ws/stream.
//
// Использование:
//  1. hub := NewHub(log)
//  2. go hub.Run()
//  3. hub.BroadcastConnectionStatus("tradelocker_123", "SUBMITTED")
type Hub struct {
	log *zap.Logger

	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Остановка главного цикла
	done chan struct{}

	stopOnce sync.Once

	// Счетчик сообщений, отброшенных при переполнении broadcast канала
	dropped atomic.Int64

	mu sync.RWMutex
}

// NewHub создает новый Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:        log,
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run запускает главный цикл Hub.
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Завершается после Stop().
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
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
			h.log.Debug("websocket client connected", zap.Int("total", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("websocket client disconnected", zap.Int("total", total))

		case message := <-h.broadcast:
			// Копируем список клиентов под коротким RLock и отправляем
			// без блокировки, чтобы не задерживать register/unregister
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
					// Клиент не успевает вычитывать - отключаем
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
				h.log.Warn("removed slow websocket clients",
					zap.Int("removed", len(toRemove)),
					zap.Int("total", total))
			}
		}
	}
}

// Stop завершает главный цикл и закрывает все клиентские каналы
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast сериализует сообщение и отправляет его всем клиентам.
// Не блокируется: при переполнении канала сообщение отбрасывается.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		h.log.Error("failed to marshal broadcast message", zap.Error(err))
		jsonBufferPool.Put(buf)
		return
	}

	// Encode добавляет trailing newline
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	msgCopy := make([]byte, len(data))
	copy(msgCopy, data)
	jsonBufferPool.Put(buf)

	select {
	case h.broadcast <- msgCopy:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastConnectionStatus отправляет шаг процесса логина
func (h *Hub) BroadcastConnectionStatus(platformID, state string) {
	h.Broadcast(NewConnectionStatusMessage(platformID, state))
}

// BroadcastPlatformUpdate отправляет изменение состояния платформы
func (h *Hub) BroadcastPlatformUpdate(platformID, event string, info *models.PlatformInfo) {
	h.Broadcast(NewPlatformUpdateMessage(platformID, event, info))
}

// BroadcastTradeResult отправляет результат торговой операции
func (h *Hub) BroadcastTradeResult(platformID string, result *models.TradeResult) {
	h.Broadcast(NewTradeResultMessage(platformID, result))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает число сообщений, отброшенных из-за
// переполнения broadcast канала
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
