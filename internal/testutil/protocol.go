package testutil

import (
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/udisondev/livemap/internal/constants"
	"github.com/udisondev/livemap/internal/protocol"
)

// WriteMessage отправляет сообщение целиком (с 4-байтовым заголовком).
func WriteMessage(t testing.TB, conn net.Conn, m *protocol.Message) {
	t.Helper()

	if err := conn.SetWriteDeadline(time.Now().Add(constants.TestReadTimeout)); err != nil {
		t.Fatalf("set write deadline: %v", err)
	}
	if _, err := conn.Write(m.Frame()); err != nil {
		t.Fatalf("write message: %v", err)
	}
}

// ReadMessage читает одно сообщение и возвращает reader по его телу.
func ReadMessage(t testing.TB, conn net.Conn) *protocol.Reader {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(constants.TestReadTimeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	body, err := protocol.ReadMessage(conn, nil, constants.MaxMessageSize)
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	return protocol.NewReader(body)
}

// ExpectRecord читает следующую запись из r и проверяет её тип.
func ExpectRecord(t testing.TB, r *protocol.Reader, want protocol.PacketType) {
	t.Helper()

	got, err := r.ReadType()
	if err != nil {
		t.Fatalf("read record type: %v", err)
	}
	if got != want {
		t.Fatalf("record type mismatch: expected %s, got %s", want, got)
	}
}

// ExpectMessage читает сообщение и проверяет тип первой записи.
func ExpectMessage(t testing.TB, conn net.Conn, want protocol.PacketType) *protocol.Reader {
	t.Helper()

	r := ReadMessage(t, conn)
	ExpectRecord(t, r, want)
	return r
}

// ExpectClosed проверяет, что удалённая сторона закрыла соединение
// (возможно, после отправки оставшихся сообщений).
func ExpectClosed(t testing.TB, conn net.Conn) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(constants.TestReadTimeout)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	buf := make([]byte, 512)
	for {
		_, err := conn.Read(buf)
		if err == nil {
			continue
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			t.Fatal("connection still open")
		}
		// EOF или reset: соединение закрыто
		return
	}
}
