package messaging

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMessage_Header(t *testing.T) {
	msg := &Message{Metadata: map[string]string{HeaderFormat: "records"}}

	if got := msg.Header(HeaderFormat); got != "records" {
		t.Errorf("expected %q, got %q", "records", got)
	}
	if got := msg.Header(HeaderEncoding); got != "" {
		t.Errorf("expected empty header, got %q", got)
	}

	var nilMsg *Message
	if got := nilMsg.Header(HeaderFormat); got != "" {
		t.Errorf("expected empty header on nil message, got %q", got)
	}
	if got := (&Message{}).Header(HeaderFormat); got != "" {
		t.Errorf("expected empty header on nil metadata, got %q", got)
	}
}

type fakeClient struct {
	connected  bool
	requestErr error
	dropOnReq  bool
}

func (f *fakeClient) Publish(context.Context, string, []byte) error { return nil }
func (f *fakeClient) PublishMsg(context.Context, *Message) error    { return nil }
func (f *fakeClient) Close() error                                  { return nil }
func (f *fakeClient) Drain() error                                  { return nil }
func (f *fakeClient) IsConnected() bool                             { return f.connected }
func (f *fakeClient) Subscribe(string, MessageHandler) (Subscription, error) {
	return nil, nil
}
func (f *fakeClient) QueueSubscribe(string, string, MessageHandler) (Subscription, error) {
	return nil, nil
}
func (f *fakeClient) Request(context.Context, string, []byte, time.Duration) (*Message, error) {
	if f.dropOnReq {
		f.connected = false
	}
	return nil, f.requestErr
}

func TestCheckClientHealth(t *testing.T) {
	tests := []struct {
		name          string
		client        Client
		wantConnected bool
		wantError     bool
	}{
		{name: "nil client", client: nil, wantError: true},
		{name: "disconnected", client: &fakeClient{}, wantError: true},
		{name: "healthy", client: &fakeClient{connected: true}, wantConnected: true},
		{
			name:          "no responders is still healthy",
			client:        &fakeClient{connected: true, requestErr: errors.New("nats: no responders available for request")},
			wantConnected: true,
		},
		{
			name:      "connection lost during probe",
			client:    &fakeClient{connected: true, requestErr: errors.New("nats: connection closed"), dropOnReq: true},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := CheckClientHealth(context.Background(), tt.client)
			if status.Connected != tt.wantConnected {
				t.Errorf("Connected = %v, want %v", status.Connected, tt.wantConnected)
			}
			if (status.Error != "") != tt.wantError {
				t.Errorf("Error = %q, wantError %v", status.Error, tt.wantError)
			}
		})
	}
}
