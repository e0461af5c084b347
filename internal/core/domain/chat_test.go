package domain

import (
	"testing"
	"time"
)

func TestChatIDKind(t *testing.T) {
	tests := []struct {
		id   ChatID
		kind PeerKind
		raw  int64
	}{
		{777000, PeerUser, 777000},
		{-4242, PeerChat, 4242},
		{-1001234567890, PeerChannel, 1234567890},
	}

	for _, tt := range tests {
		if got := tt.id.Kind(); got != tt.kind {
			t.Errorf("ChatID(%d).Kind() = %s, want %s", tt.id, got, tt.kind)
		}
		if got := tt.id.RawID(); got != tt.raw {
			t.Errorf("ChatID(%d).RawID() = %d, want %d", tt.id, got, tt.raw)
		}
	}

	if got := ChannelChatID(1234567890); got != -1001234567890 {
		t.Errorf("ChannelChatID = %d", got)
	}
	if got := BasicChatID(4242); got != -4242 {
		t.Errorf("BasicChatID = %d", got)
	}
}

func TestParsePeerRef(t *testing.T) {
	tests := []struct {
		in      string
		want    PeerRef
		wantErr bool
	}{
		{"12345", PeerRef{ID: 12345}, false},
		{"-1001", PeerRef{ID: -1001}, false},
		{"@scp_079", PeerRef{Username: "scp_079"}, false},
		{"scp_079", PeerRef{Username: "scp_079"}, false},
		{"", PeerRef{}, true},
		{"@", PeerRef{}, true},
	}

	for _, tt := range tests {
		got, err := ParsePeerRef(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePeerRef(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePeerRef(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestDeferredDeletionRemaining(t *testing.T) {
	now := time.Now()
	d := &DeferredDeletion{DueAt: now.Add(30 * time.Second)}
	if got := d.Remaining(now); got != 30*time.Second {
		t.Errorf("Remaining = %v, want 30s", got)
	}

	overdue := &DeferredDeletion{DueAt: now.Add(-time.Minute)}
	if got := overdue.Remaining(now); got != 0 {
		t.Errorf("Remaining for overdue = %v, want 0", got)
	}
}
