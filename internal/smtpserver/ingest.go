package smtpserver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.io/razzkumar/maildev/internal/metrics"
	"github.io/razzkumar/maildev/internal/sse"
	"github.io/razzkumar/maildev/internal/store"
)

const (
	SourceSMTP      = "smtp"
	SourceDirectory = "directory"
)

// Storage is the part of the record store ingestion writes to.
type Storage interface {
	Insert(ctx context.Context, email store.Email, raw []byte, attachments []store.AttachmentData) error
	Exists(ctx context.Context, id string) (bool, error)
}

// Ingester parses captured messages, stores them and announces them.
type Ingester struct {
	store   Storage
	hub     *sse.Hub
	logger  *slog.Logger
	mailDir string
}

func NewIngester(storage Storage, hub *sse.Hub, logger *slog.Logger, mailDir string) *Ingester {
	return &Ingester{store: storage, hub: hub, logger: logger, mailDir: mailDir}
}

func (i *Ingester) Ingest(ctx context.Context, id string, envelope store.Envelope, raw []byte, source string) (store.Email, error) {
	email, attachments, err := ParseMessage(id, envelope, raw, time.Now())
	if err != nil {
		i.logger.Warn("parse message", "id", id, "error", err)
	}

	if err := i.store.Insert(ctx, email, raw, attachments); err != nil {
		i.logger.Error("store message", "id", id, "error", err)
		return store.Email{}, err
	}

	if source == SourceSMTP && i.mailDir != "" {
		if err := os.WriteFile(filepath.Join(i.mailDir, id+".eml"), raw, 0o644); err != nil {
			i.logger.Warn("write eml file", "id", id, "error", err)
		}
	}

	metrics.EmailsReceived.WithLabelValues(source).Inc()
	if err := i.hub.Publish("new", email); err != nil {
		i.logger.Warn("publish new email", "id", id, "error", err)
	}
	i.logger.Info("saved email", "id", id, "subject", email.Subject, "source", source)
	return email, nil
}

// LoadDirectory imports every .eml file in the mail directory whose id is
// not stored yet and returns how many were imported.
func (i *Ingester) LoadDirectory(ctx context.Context) (int, error) {
	if i.mailDir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(i.mailDir)
	if err != nil {
		return 0, fmt.Errorf("read mail directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".eml") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".eml")
		exists, err := i.store.Exists(ctx, id)
		if err != nil {
			return loaded, err
		}
		if exists {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(i.mailDir, entry.Name()))
		if err != nil {
			i.logger.Warn("read eml file", "file", entry.Name(), "error", err)
			continue
		}
		if _, err := i.Ingest(ctx, id, store.Envelope{}, raw, SourceDirectory); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}
