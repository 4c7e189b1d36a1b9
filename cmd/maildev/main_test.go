package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.io/razzkumar/maildev/internal/config"
)

func TestApplyFlagsOnlyOverridesSetFlags(t *testing.T) {
	cfg := config.Default()
	cfg.SMTPPort = 2525

	cmd := &cli.Command{
		Name: "maildev",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "web"},
			&cli.IntFlag{Name: "smtp"},
			&cli.StringFlag{Name: "base-pathname"},
			&cli.BoolFlag{Name: "outgoing-secure"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			applyFlags(&cfg, cmd)
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), []string{"maildev", "--web", "8080", "--base-pathname", "/mail", "--outgoing-secure"}))

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 2525, cfg.SMTPPort)
	assert.Equal(t, "/mail", cfg.BasePath)
	assert.True(t, cfg.Outgoing.Secure)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "auto", false).Info("hello", "key", "value")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])

	buf.Reset()
	newLogger(&buf, "text", false).Debug("hidden")
	assert.Empty(t, buf.String())

	buf.Reset()
	newLogger(&buf, "text", true).Debug("shown")
	assert.Contains(t, buf.String(), "msg=shown")
}
