// Package chat — клиент чат-моста (совместим с API matterbridge):
// входящие команды приезжают по WebSocket-стриму, исходящие сообщения
// уходят HTTP POST-ом. Доставка fire-and-forget: ошибка отправки
// логируется и глотается, подтверждений не ждём.
package chat

import (
	"bytes"
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/woreworewo/dota/internal/config"
	"github.com/woreworewo/dota/internal/logging"
	"github.com/woreworewo/dota/internal/metrics"
)

// Message — кадр моста.
type Message struct {
	Text     string `json:"text"`
	Username string `json:"username,omitempty"`
	Gateway  string `json:"gateway"`
}

const botUsername = "dotabot"

type Client struct {
	gatewayURL string
	sendURL    string
	token      string
	channel    string
	logChannel string

	http *http.Client

	// OnMessage зовётся синхронно из цикла чтения; долгие обработчики
	// должны сами уходить в горутину.
	OnMessage func(m Message)
}

func NewClient(cfg config.ChatConfig) *Client {
	return &Client{
		gatewayURL: cfg.GatewayURL,
		sendURL:    cfg.SendURL,
		token:      cfg.Token,
		channel:    cfg.Channel,
		logChannel: cfg.LogChannel,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Enabled — настроен ли мост хоть как-то.
func (c *Client) Enabled() bool { return c.gatewayURL != "" || c.sendURL != "" }

// HasLogChannel — настроено ли зеркало логов.
func (c *Client) HasLogChannel() bool { return c.logChannel != "" }

// Say шлёт текст в основной канал.
func (c *Client) Say(text string) { c.SayTo(c.channel, text) }

// SayLog шлёт текст в лог-канал (зеркало warn+).
func (c *Client) SayLog(text string) { c.SayTo(c.logChannel, text) }

// SayTo отправляет сообщение POST-ом. Ошибки не возвращаются:
// уведомление либо ушло, либо про него осталась строка в логе.
// Жалуется строго на debug-уровне: SayTo стоит на конце зеркала
// warn+ логов, и его собственный warn вернулся бы в него же.
func (c *Client) SayTo(gateway, text string) {
	if c.sendURL == "" || gateway == "" || text == "" {
		return
	}
	body, err := json.Marshal(Message{Text: text, Username: botUsername, Gateway: gateway})
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		logging.Debug().Err(err).Msg("chat: bad send request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logging.Debug().Err(err).Msg("chat: send failed")
		return
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.Debug().Int("status", resp.StatusCode).Msg("chat: send rejected")
		return
	}
	metrics.NotificationsSent.Inc()
}

// Serve держит WebSocket-подключение к стриму моста: реконнект с
// экспоненциальной паузой 1с..30с, сбрасывается после удачного коннекта.
// Без gateway_url сервис просто спит до остановки (чат выключен).
func (c *Client) Serve(ctx context.Context) error {
	if c.gatewayURL == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	backoff := time.Second
	for {
		conn, err := c.dial(ctx)
		if err == nil {
			backoff = time.Second
			logging.Info().Str("url", c.gatewayURL).Msg("chat: connected")
			err = c.readLoop(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Warn().Err(err).Dur("retry", backoff).Msg("chat: connection lost")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (c *Client) String() string { return "chat.Client" }

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	if c.token != "" {
		hdr.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.gatewayURL, hdr)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, err
}

const readTimeout = 90 * time.Second

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)

	// пинги держат соединение живым, ctx закрывает его и будит ReadMessage
	go func() {
		t := time.NewTicker(30 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			logging.Debug().Err(err).Msg("chat: undecodable frame")
			continue
		}
		if m.Username == botUsername || m.Text == "" { // своё эхо
			continue
		}
		if c.OnMessage != nil {
			c.OnMessage(m)
		}
	}
}
