package scheduling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai_call_agent/internal/models"
)

func testRequest() models.BookingRequest {
	return models.BookingRequest{
		TenantID:    "tenant-a",
		CallID:      "call-1",
		LeadID:      "lead-1",
		Industry:    "hvac",
		Preferences: models.AppointmentPreferences{Date: "tomorrow", TimeOfDay: "morning"},
	}
}

func TestBook(t *testing.T) {
	start := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name       string
		status     int
		body       models.BookingResult
		wantStatus string
		wantErr    bool
	}{
		{
			name:       "确认",
			status:     http.StatusCreated,
			body:       models.BookingResult{Status: models.BookingConfirmed, ConfirmationID: "CONF-9", Slot: &models.Slot{Start: start}},
			wantStatus: models.BookingConfirmed,
		},
		{
			name:       "冲突",
			status:     http.StatusConflict,
			body:       models.BookingResult{Alternatives: []models.Slot{{Start: start.Add(24 * time.Hour)}}},
			wantStatus: models.BookingConflict,
		},
		{
			name:    "未知状态",
			status:  http.StatusOK,
			body:    models.BookingResult{Status: "pending"},
			wantErr: true,
		},
		{
			name:    "服务端错误",
			status:  http.StatusBadGateway,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got models.BookingRequest
			var gotTenant string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/appointments", r.URL.Path)
				gotTenant = r.Header.Get("X-Tenant-ID")
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(tt.body)
			}))
			defer srv.Close()

			result, err := NewClient(Config{BaseURL: srv.URL}).Book(context.Background(), testRequest())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, result.Status)
			assert.Equal(t, "tenant-a", gotTenant)
			assert.Equal(t, testRequest(), got)
		})
	}
}

func TestBook_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(Config{BaseURL: srv.URL}).Book(ctx, testRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
