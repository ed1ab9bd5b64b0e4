// ABOUTME: Tests for request construction and handshake parsing in debug-client
// ABOUTME: Checks that a built disconnect request is recognized by the agent

package main

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/2389/debug-agent/internal/agent"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name    string
		cmd     string
		seq     int64
		want    string
		wantErr bool
	}{
		{
			name: "bare command",
			cmd:  "version",
			seq:  3,
			want: `{"seq":3,"type":"request","command":"version"}`,
		},
		{
			name: "json object keeps arguments",
			cmd:  `{"command":"evaluate","arguments":{"expression":"1+1"}}`,
			seq:  7,
			want: `{"command":"evaluate","arguments":{"expression":"1+1"},"seq":7,"type":"request"}`,
		},
		{
			name: "explicit type kept",
			cmd:  `{"type":"event","event":"x"}`,
			seq:  1,
			want: `{"type":"event","event":"x","seq":1}`,
		},
		{
			name:    "invalid json",
			cmd:     `{"command":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildRequest(tt.cmd, tt.seq)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, got)
			assert.True(t, gjson.Valid(got))
		})
	}
}

func TestBuildRequest_DisconnectMatchesAgent(t *testing.T) {
	got, err := buildRequest("disconnect", 1)
	require.NoError(t, err)
	assert.Equal(t, agent.DisconnectCommand, got)
}

func TestReadHandshake(t *testing.T) {
	t.Run("connect headers", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader(
			"Type: connect\r\nV8-Version: 1.0\r\nProtocol-Version: 1\r\nContent-Length: 0\r\n\r\n"))

		headers, err := readHandshake(r)
		require.NoError(t, err)
		assert.Equal(t, []string{"Type: connect", "V8-Version: 1.0", "Protocol-Version: 1", "Content-Length: 0"}, headers)
	})

	t.Run("rejected", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader(agent.SessionActiveMessage))

		_, err := readHandshake(r)
		assert.EqualError(t, err, "Remote debugging session already active")
	})

	t.Run("connection closed", func(t *testing.T) {
		r := bufio.NewReader(strings.NewReader("Type: connect\r\n"))

		_, err := readHandshake(r)
		assert.ErrorContains(t, err, "reading handshake")
	})
}
