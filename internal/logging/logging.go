// Package logging — общий zerolog-логгер бота.
//
// Инициализируется один раз в main (Init), дальше все пакеты пишут через
// logging.Debug()/Info()/Warn()/Error(). Формат "console" — для запуска
// руками, "json" — для работы под systemd/docker. Хук ChatHook зеркалит
// warn и выше в лог-чат (см. chat.log_channel в конфиге).
package logging

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().Timestamp().Logger()
)

// Init настраивает глобальный логгер. level: debug|info|warn|error,
// format: console|json.
func Init(level, format string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("bad log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var l zerolog.Logger
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "console":
		l = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	case "json":
		l = zerolog.New(os.Stderr)
	default:
		return fmt.Errorf("bad log format %q", format)
	}

	mu.Lock()
	logger = l.Level(lvl).With().Timestamp().Logger()
	mu.Unlock()
	return nil
}

// Logger возвращает копию текущего глобального логгера.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Hook добавляет хук к глобальному логгеру (например ChatHook).
func Hook(h zerolog.Hook) {
	mu.Lock()
	logger = logger.Hook(h)
	mu.Unlock()
}

func Debug() *zerolog.Event { l := Logger(); return l.Debug() }
func Info() *zerolog.Event  { l := Logger(); return l.Info() }
func Warn() *zerolog.Event  { l := Logger(); return l.Warn() }
func Error() *zerolog.Event { l := Logger(); return l.Error() }

// ChatHook пересылает warn+ в чат (аналог хвоста лога в телеграм-группе
// разработчиков). Отправитель вешается позже, когда чат уже подключен;
// до этого хук молчит. Шлём в отдельной горутине, чтобы не тормозить
// логирование; отправитель обязан жаловаться на свои ошибки не выше
// debug, а записи, появившиеся пока отправка идёт, хук пропускает —
// иначе предупреждение самой отправки уходило бы в чат по кругу.
type ChatHook struct {
	mu   sync.RWMutex
	send func(text string)

	sending atomic.Bool
}

func (h *ChatHook) SetSender(send func(string)) {
	h.mu.Lock()
	h.send = send
	h.mu.Unlock()
}

func (h *ChatHook) Run(_ *zerolog.Event, level zerolog.Level, msg string) {
	if level < zerolog.WarnLevel || msg == "" {
		return
	}
	h.mu.RLock()
	send := h.send
	h.mu.RUnlock()
	if send == nil {
		return
	}
	if !h.sending.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer h.sending.Store(false)
		send(fmt.Sprintf("[%s] %s", level.String(), msg))
	}()
}
