package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/heritage-sites-service/internal/config"
	"github.com/couchcryptid/heritage-sites-service/internal/domain"
)

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	p := domain.Point{
		ID:        "csv-4",
		Lat:       -20.5,
		Lng:       -51.2,
		Title:     "Sítio Lagoa",
		Location:  "Presidente Epitácio",
		Categoria: "Arqueológico",
	}

	msg, err := serializeToMessage(p, now)
	require.NoError(t, err)

	assert.Equal(t, []byte("csv-4"), msg.Key)
	assert.Contains(t, string(msg.Value), `"categoria":"Arqueológico"`)
	assert.NotContains(t, string(msg.Value), `"periodo"`)

	var decoded domain.Point
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, p, decoded)

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "source", msg.Headers[0].Key)
	assert.Equal(t, []byte("csv"), msg.Headers[0].Value)
	assert.Equal(t, "loaded_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-03-01T12:30:00Z"), msg.Headers[1].Value)
}

func TestWriter_LoadBatch_Empty(t *testing.T) {
	w := NewWriter(&config.Config{KafkaBrokers: []string{"localhost:1"}, KafkaTopic: "heritage-sites"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = w.Close() })

	assert.NoError(t, w.LoadBatch(context.Background(), nil))
}
