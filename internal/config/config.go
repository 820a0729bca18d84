package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/livemap/internal/constants"
)

// LiveServer holds all configuration for hosting a live session.
type LiveServer struct {
	// Network
	BindAddress string    `yaml:"bind_address"`
	Port        int       `yaml:"port"`
	WebSocket   WebSocket `yaml:"websocket"`

	// Session
	Name          string `yaml:"name"`
	Password      string `yaml:"password"`
	PasswordHash  string `yaml:"password_hash"` // bcrypt, takes precedence over password
	ClientVersion uint32 `yaml:"client_version"`
	MaxPeers      int    `yaml:"max_peers"`

	// Peer I/O
	SendQueueSize  int           `yaml:"send_queue_size"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"` // idle peer deadline, 0 disables
	CursorRate     time.Duration `yaml:"cursor_rate"` // min interval between cursor updates per peer
	MaxMessageSize int           `yaml:"max_message_size"`

	Undo    Undo    `yaml:"undo"`
	Journal Journal `yaml:"journal"`
	Log     Log     `yaml:"log"`
}

// LiveClient holds configuration for joining a live session.
type LiveClient struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	WebSocketURL  string `yaml:"websocket_url"` // when set, dial websocket instead of TCP
	Name          string `yaml:"name"`
	Password      string `yaml:"password"`
	ClientVersion uint32 `yaml:"client_version"`
	CursorColor   RGBA   `yaml:"cursor_color"`

	SendQueueSize int           `yaml:"send_queue_size"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`

	Undo Undo `yaml:"undo"`
	Log  Log  `yaml:"log"`
}

// WebSocket configures the optional websocket listener.
type WebSocket struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

// Undo configures the action history.
type Undo struct {
	Size          int           `yaml:"size"`           // max entries, 0 = unlimited
	MemoryMB      int           `yaml:"memory_mb"`      // max approximate memory, 0 = unlimited
	GroupActions  bool          `yaml:"group_actions"`  // merge consecutive batches of the same kind
	StackingDelay time.Duration `yaml:"stacking_delay"` // merge window, 0 disables merging
}

// MemoryLimit returns the memory cap in bytes.
func (u Undo) MemoryLimit() int {
	return u.MemoryMB * 1024 * 1024
}

// Journal configures the session journal store.
type Journal struct {
	// Driver is "sqlite", "postgres" or "" (disabled).
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Log configures logging.
type Log struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"` // rotated copy of stdout when set
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// RGBA is a cursor color.
type RGBA struct {
	R uint8 `yaml:"r"`
	G uint8 `yaml:"g"`
	B uint8 `yaml:"b"`
	A uint8 `yaml:"a"`
}

// DefaultUndo returns history settings with sensible defaults.
func DefaultUndo() Undo {
	return Undo{
		Size:          40,
		MemoryMB:      64,
		GroupActions:  true,
		StackingDelay: time.Second,
	}
}

// DefaultLiveServer returns LiveServer config with sensible defaults.
func DefaultLiveServer() LiveServer {
	return LiveServer{
		BindAddress: "0.0.0.0",
		Port:        31313,
		WebSocket: WebSocket{
			Address: "0.0.0.0:31314",
			Path:    "/live",
		},
		Name:           "Livemap Server",
		MaxPeers:       constants.MaxLiveClients - 1,
		SendQueueSize:  constants.DefaultSendQueueSize,
		WriteTimeout:   constants.DefaultWriteTimeout,
		ReadTimeout:    constants.DefaultReadTimeout,
		CursorRate:     50 * time.Millisecond,
		MaxMessageSize: constants.MaxMessageSize,
		Undo:           DefaultUndo(),
		Log:            Log{Level: "info", MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// DefaultLiveClient returns LiveClient config with sensible defaults.
func DefaultLiveClient() LiveClient {
	return LiveClient{
		Host:          "localhost",
		Port:          31313,
		Name:          "Editor",
		CursorColor:   RGBA{R: 255, G: 0, B: 0, A: 128},
		SendQueueSize: constants.DefaultSendQueueSize,
		WriteTimeout:  constants.DefaultWriteTimeout,
		DialTimeout:   constants.DefaultDialTimeout,
		Undo:          DefaultUndo(),
		Log:           Log{Level: "info"},
	}
}

// Validation errors.
var (
	ErrInvalidName     = errors.New("name must be 1-32 characters")
	ErrInvalidPassword = errors.New("password must be at most 32 characters")
	ErrInvalidPort     = errors.New("port must be in range 1-65535")
	ErrInvalidMaxPeers = errors.New("max_peers must be in range 1-15")
)

// ValidateName checks a server name or nickname.
func ValidateName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 1 || n > constants.MaxNameLength {
		return ErrInvalidName
	}
	return nil
}

// ValidatePassword checks a session password.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) > constants.MaxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// ValidatePort checks a TCP port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// Validate checks host settings before listening.
func (c LiveServer) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return fmt.Errorf("server name: %w", err)
	}
	if err := ValidatePassword(c.Password); err != nil {
		return err
	}
	if err := ValidatePort(c.Port); err != nil {
		return err
	}
	if c.MaxPeers < 1 || c.MaxPeers >= constants.MaxLiveClients {
		return ErrInvalidMaxPeers
	}
	return nil
}

// Validate checks client settings before connecting.
func (c LiveClient) Validate() error {
	if err := ValidateName(c.Name); err != nil {
		return fmt.Errorf("nickname: %w", err)
	}
	if err := ValidatePassword(c.Password); err != nil {
		return err
	}
	if c.WebSocketURL != "" {
		return nil
	}
	return ValidatePort(c.Port)
}

// LoadLiveServer loads host config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadLiveServer(path string) (LiveServer, error) {
	cfg := DefaultLiveServer()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadLiveClient loads client config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadLiveClient(path string) (LiveClient, error) {
	cfg := DefaultLiveClient()
	if err := load(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func load(path string, cfg any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}

	return nil
}
