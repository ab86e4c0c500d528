package notifier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
)

// fakeTelegram answers getMe and fails the first failures sendMessage calls.
func fakeTelegram(t *testing.T, failures int32) (*httptest.Server, *int32, *string) {
	t.Helper()
	var sends int32
	var lastText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"scanner","username":"scanner_bot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			n := atomic.AddInt32(&sends, 1)
			if n <= failures {
				fmt.Fprint(w, `{"ok":false,"error_code":500,"description":"try later"}`)
				return
			}
			r.ParseForm()
			lastText = r.FormValue("text")
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &sends, &lastText
}

func TestTelegramNotifier_Send(t *testing.T) {
	srv, sends, text := fakeTelegram(t, 0)
	n, err := NewTelegramNotifierWithEndpoint("TOKEN", "42", srv.URL+"/bot%s/%s", srv.Client(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTelegramNotifierWithEndpoint: %v", err)
	}
	if err := n.Send(context.Background(), "<b>hi</b>"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if *sends != 1 || *text != "<b>hi</b>" {
		t.Errorf("expected one send of <b>hi</b>, got %d sends, text %q", *sends, *text)
	}
}

func TestTelegramNotifier_SendWithRetry(t *testing.T) {
	srv, sends, _ := fakeTelegram(t, 2)
	n, err := NewTelegramNotifierWithEndpoint("TOKEN", "42", srv.URL+"/bot%s/%s", srv.Client(), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewTelegramNotifierWithEndpoint: %v", err)
	}
	if err := n.SendWithRetry(context.Background(), "hello", 3); err != nil {
		t.Fatalf("SendWithRetry: %v", err)
	}
	if *sends != 3 {
		t.Errorf("expected 3 attempts, got %d", *sends)
	}
}

func TestNewTelegramNotifier_BadChatID(t *testing.T) {
	if _, err := NewTelegramNotifierWithEndpoint("TOKEN", "not-a-number", "http://127.0.0.1:0/bot%s/%s", http.DefaultClient, zerolog.Nop()); err == nil {
		t.Error("expected an error for a non-numeric chat id")
	}
}
