package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOnlineAt(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name       string
		lastActive time.Time
		online     bool
	}{
		{"just active", now, true},
		{"inside window", now.Add(-PresenceWindow + time.Second), true},
		{"exactly at window", now.Add(-PresenceWindow), false},
		{"outside window", now.Add(-PresenceWindow - time.Second), false},
		{"never active", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{LastActiveAt: tt.lastActive}
			assert.Equal(t, tt.online, u.OnlineAt(now))
		})
	}
}
