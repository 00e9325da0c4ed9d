package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		description string
		args        []string
		expected    Flags
		expectedErr bool
	}{
		{
			description: "defaults",
			expected:    Flags{Server: "localhost:8080", Room: "default", Mode: "tui", Retry: 30 * time.Second},
		},
		{
			description: "join over ide",
			args:        []string{"-server", "example.com:443", "-secure", "-room", "notes", "-join", "-mode", "ide"},
			expected:    Flags{Server: "example.com:443", Secure: true, Room: "notes", Join: true, Mode: "ide", Retry: 30 * time.Second},
		},
		{
			description: "unknown mode",
			args:        []string{"-mode", "gui"},
			expectedErr: true,
		},
	}

	for _, tc := range tests {
		got, err := parseFlags(tc.args)
		if (err != nil) != tc.expectedErr {
			t.Errorf("(%s) got = %v, expected error = %v\n", tc.description, err, tc.expectedErr)
			continue
		}
		if !cmp.Equal(got, tc.expected) {
			t.Errorf("(%s) got != want; diff = %v\n", tc.description, cmp.Diff(got, tc.expected))
		}
	}
}

func TestRoomURL(t *testing.T) {
	tests := []struct {
		description string
		server      string
		room        string
		secure      bool
		expected    string
	}{
		{description: "plain", server: "localhost:8080", room: "default", expected: "ws://localhost:8080/rooms/default"},
		{description: "secure", server: "example.com", room: "notes", secure: true, expected: "wss://example.com/rooms/notes"},
		{description: "escaped", server: "localhost:8080", room: "my notes", expected: "ws://localhost:8080/rooms/my%20notes"},
	}

	for _, tc := range tests {
		if got := roomURL(tc.server, tc.room, tc.secure); got != tc.expected {
			t.Errorf("(%s) got = %q, expected = %q\n", tc.description, got, tc.expected)
		}
	}
}
