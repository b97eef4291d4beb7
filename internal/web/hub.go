package web

import (
	"encoding/json"
	"sync"
)

// イベント種別。クライアントはこれを見て進捗バーと結果一覧を更新します。
const (
	EventProgress      = "progress"       // リクエスト発行直前の (current, total)
	EventProgressClear = "progress_clear" // バッチ終了時の進捗表示クリア
	EventResult        = "result"         // 1件成功するたびの到達件数
	EventBatchDone     = "batch_completed"
	EventBatchFailed   = "batch_failed"
)

// WSEvent は WebSocket で全クライアントに配信される通知です。
type WSEvent struct {
	Type      string `json:"type"`
	Current   int    `json:"current,omitempty"`
	Total     int    `json:"total,omitempty"`
	Completed int    `json:"completed,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Hub は接続中の WebSocket クライアントの束を管理します。
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
}

func NewHub() *Hub {
	return &Hub{
		clients: map[string]*wsClient{},
	}
}

// safeCloseBytes は二重クローズを握りつぶしてチャネルを閉じます。
func safeCloseBytes(ch chan []byte) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

// Add はクライアントを登録します。同じ ID の古い接続は切断されます。
func (h *Hub) Add(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.clients[c.id]; ok {
		safeCloseBytes(old.send)
		old.conn.Close()
	}

	h.clients[c.id] = c
}

func (h *Hub) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		safeCloseBytes(c.send)
		c.conn.Close()
	}
}

// Broadcast は全クライアントにイベントを送ります。送信バッファが詰まっている
// クライアントは切断します（遅い購読者がバッチ実行を塞がないように）。
func (h *Hub) Broadcast(event WSEvent) {
	b, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	var stale []string
	for id, c := range h.clients {
		select {
		case c.send <- b:
		default:
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.Remove(id)
	}
}

// Shutdown は全クライアントを切断します。
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[string]*wsClient{}
	h.mu.Unlock()

	for _, c := range clients {
		safeCloseBytes(c.send)
		c.conn.Close()
	}
}
