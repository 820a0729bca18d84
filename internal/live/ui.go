package live

import (
	"log/slog"

	"github.com/udisondev/livemap/internal/protocol"
	"github.com/udisondev/livemap/internal/world"
)

// PeerInfo describes a connected editor for the client list.
type PeerInfo struct {
	ID     uint32
	Name   string
	Remote string
	Color  protocol.Color
}

// LogTab is the session log pane. Calls come from the dispatcher goroutine.
type LogTab interface {
	Message(text string)
	Chat(speaker, text string)
	UpdateClientList(peers []PeerInfo)
	Disconnect()
}

// KickLogger is implemented by log panes that record kicks separately.
type KickLogger interface {
	Kicked(name, reason string)
}

// Notifier is the UI surface of a client session. Calls come from the
// dispatcher goroutine.
type Notifier interface {
	// MapReady is called once the host has described its map.
	MapReady(doc *world.Map)
	// Refresh asks for a redraw of the view and the minimap.
	Refresh()
	SetStatus(text string)
	// Alert shows a blocking message, e.g. a kick reason.
	Alert(title, text string)
	// SwitchVersion switches the local client data to version.
	// An error closes the session.
	SwitchVersion(version uint32) error
	// Closed tells the UI to discard the session's editor.
	Closed()
}

// SlogTab writes log pane entries as structured log lines.
type SlogTab struct {
	logger *slog.Logger
}

// NewSlogTab creates a log pane backed by logger (slog.Default when nil).
func NewSlogTab(logger *slog.Logger) *SlogTab {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogTab{logger: logger}
}

func (t *SlogTab) Message(text string) {
	t.logger.Info(text)
}

func (t *SlogTab) Chat(speaker, text string) {
	t.logger.Info("chat", "speaker", speaker, "text", text)
}

func (t *SlogTab) UpdateClientList(peers []PeerInfo) {
	names := make([]string, len(peers))
	for i, p := range peers {
		names[i] = p.Name
	}
	t.logger.Info("client list", "count", len(peers), "names", names)
}

func (t *SlogTab) Disconnect() {
	t.logger.Info("live session closed")
}

// NopNotifier ignores every UI call and accepts any client version.
type NopNotifier struct{}

func (NopNotifier) MapReady(*world.Map)        {}
func (NopNotifier) Refresh()                   {}
func (NopNotifier) SetStatus(string)           {}
func (NopNotifier) Alert(string, string)       {}
func (NopNotifier) SwitchVersion(uint32) error { return nil }
func (NopNotifier) Closed()                    {}
