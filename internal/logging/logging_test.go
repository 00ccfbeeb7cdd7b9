package logging

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type levelRecorder struct {
	got *[]zerolog.Level
}

func (r levelRecorder) Run(_ *zerolog.Event, level zerolog.Level, _ string) {
	*r.got = append(*r.got, level)
}

func TestInitValidation(t *testing.T) {
	t.Cleanup(func() { _ = Init("info", "console") })

	if err := Init("loud", "console"); err == nil {
		t.Error("bad level accepted")
	}
	if err := Init("info", "paper"); err == nil {
		t.Error("bad format accepted")
	}
	if err := Init("", ""); err != nil {
		t.Errorf("empty defaults rejected: %v", err)
	}
	if err := Init("DEBUG", "json"); err != nil {
		t.Errorf("Init(DEBUG, json): %v", err)
	}
}

// Хелперы пакета отдают события своих уровней через текущий глобальный
// логгер, хуки включительно.
func TestLevelHelpersEmit(t *testing.T) {
	if err := Init("debug", "console"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = Init("info", "console") })

	var got []zerolog.Level
	Hook(levelRecorder{got: &got})

	Debug().Msg("d")
	Info().Msg("i")
	Warn().Msg("w")
	Error().Msg("e")

	want := []zerolog.Level{zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel, zerolog.ErrorLevel}
	if len(got) != len(want) {
		t.Fatalf("hook saw %d events, want %d", len(got), len(want))
	}
	for i, lvl := range want {
		if got[i] != lvl {
			t.Errorf("event %d level = %s, want %s", i, got[i], lvl)
		}
	}
}

func TestChatHookMirrorsOnlyWarnPlus(t *testing.T) {
	if err := Init("debug", "console"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = Init("info", "console") })

	sent := make(chan string, 8)
	hook := &ChatHook{}
	hook.SetSender(func(s string) { sent <- s })
	Hook(hook)

	Debug().Msg("шум")
	Info().Msg("тоже шум")
	Warn().Msg("поломка сети")

	select {
	case s := <-sent:
		if !strings.Contains(s, "[warn] поломка сети") {
			t.Errorf("mirrored %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warn was not mirrored")
	}
	select {
	case s := <-sent:
		t.Errorf("unexpected extra mirror %q", s)
	case <-time.After(100 * time.Millisecond):
	}
}

// Отправитель, жалующийся warn-ом через тот же логгер, не должен
// раскрутить бесконечное зеркало самого себя.
func TestChatHookSendFailureDoesNotCascade(t *testing.T) {
	if err := Init("info", "console"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = Init("info", "console") })

	var attempts atomic.Int32
	hook := &ChatHook{}
	hook.SetSender(func(string) {
		attempts.Add(1)
		Warn().Msg("chat: send failed")
	})
	Hook(hook)

	Warn().Msg("первичная поломка")

	time.Sleep(200 * time.Millisecond)
	if n := attempts.Load(); n != 1 {
		t.Fatalf("send attempts = %d, want 1", n)
	}
}
