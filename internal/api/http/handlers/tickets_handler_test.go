package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/support-desk/internal/domain"
	"github.com/spec-kit/support-desk/internal/storage"
)

func TestTicketResponseAttachment(t *testing.T) {
	pdf := "tickets/7f0c.pdf"
	png := "tickets/7f0c.png"
	unsafe := "../etc/passwd"

	tests := []struct {
		name       string
		base       string
		attachment *string
		want       *string
		warns      int
	}{
		{name: "none", base: "https://cdn.example.com/media", attachment: nil, want: nil},
		{name: "pdf is raw", base: "https://cdn.example.com/media", attachment: &pdf, want: strPtr("https://cdn.example.com/media/raw/upload/tickets/7f0c.pdf")},
		{name: "image", base: "https://cdn.example.com/media/", attachment: &png, want: strPtr("https://cdn.example.com/media/image/upload/tickets/7f0c.png")},
		{name: "unsafe id", base: "https://cdn.example.com/media", attachment: &unsafe, want: nil, warns: 1},
		{name: "relative base", base: "media", attachment: &png, want: nil, warns: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			h := NewTicketsHandler(nil, storage.NewURLResolver(tt.base), zap.New(core))

			resp := h.ticketResponse(&domain.Ticket{ID: "t-1", Attachment: tt.attachment})

			if tt.want == nil {
				assert.Nil(t, resp.Attachment)
			} else {
				require.NotNil(t, resp.Attachment)
				assert.Equal(t, *tt.want, *resp.Attachment)
			}
			assert.Equal(t, tt.warns, logs.Len())
			assert.NotNil(t, resp.StatusHistory)
		})
	}
}

func strPtr(s string) *string { return &s }
