package config

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATABASE", "DB_HOST", "SECRET_KEY", "SESSION_KEY", "MEDIA_URL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, "5432", cfg.DB.Port)
	assert.Equal(t, "/media", cfg.MediaURL)
	assert.Equal(t, "warn", cfg.LogLevel)

	assert.EqualError(t, cfg.Validate(), "SECRET_KEY required")
}

func TestLoadEnvFile(t *testing.T) {
	for _, key := range []string{"PORT", "SECRET_KEY", "SESSION_KEY"} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
	t.Setenv("DB_HOST", "already-set")

	file := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(file, []byte("PORT=8000\nSECRET_KEY=s3cret\nDB_HOST=from-file\n"), 0o600))

	cfg, err := Load(file)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8000", cfg.Port)
	assert.Equal(t, "s3cret", cfg.SecretKey)
	assert.Equal(t, "s3cret", cfg.SessionKey, "session key falls back to the secret")
	assert.Equal(t, "already-set", cfg.DB.Host, "the environment wins over the file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"ok", Config{SecretKey: "k", Port: "80", MediaURL: "/media", LogLevel: "info"}, true},
		{"relative media url", Config{SecretKey: "k", Port: ":80", MediaURL: "media", LogLevel: "info"}, false},
		{"bad level", Config{SecretKey: "k", Port: ":80", MediaURL: "/media", LogLevel: "loud"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewLoggerShipsToLogstash(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		received <- string(buf[:n])
	}()

	cfg := Config{LogLevel: "info", LogstashAddr: ln.Addr().String()}
	logger, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	logger.SetOutput(os.Stderr)
	logger.WithField("user_id", 7).Warn("shipped entry")

	select {
	case msg := <-received:
		assert.Contains(t, msg, "shipped entry")
		assert.Contains(t, msg, "social-api")
	case <-time.After(5 * time.Second):
		t.Fatal("no entry reached logstash")
	}
}
