package worker_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/voicelink/internal/worker"
)

func TestJobFromValues(t *testing.T) {
	tc := []struct {
		name     string
		values   map[string]any
		expected worker.JoinJob
		err      bool
	}{
		{
			name: "join",
			values: map[string]any{
				"action":    "join",
				"guildID":   "G1",
				"channelID": "C1",
				"selfMute":  "true",
				"selfDeaf":  "false",
			},
			expected: worker.JoinJob{ID: "1-0", Action: worker.ActionJoin, GuildID: "G1", ChannelID: "C1", SelfMute: true},
		},
		{
			name:     "leave without flags",
			values:   map[string]any{"action": "leave", "guildID": "G1"},
			expected: worker.JoinJob{ID: "1-0", Action: worker.ActionLeave, GuildID: "G1"},
		},
		{
			name:   "join without channel",
			values: map[string]any{"action": "join", "guildID": "G1"},
			err:    true,
		},
		{
			name:   "missing guild",
			values: map[string]any{"action": "leave"},
			err:    true,
		},
		{
			name:   "unknown action",
			values: map[string]any{"action": "dance", "guildID": "G1"},
			err:    true,
		},
		{
			name:   "malformed flag",
			values: map[string]any{"action": "join", "guildID": "G1", "channelID": "C1", "selfDeaf": "maybe"},
			err:    true,
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			job, err := worker.JobFromValues("1-0", test.values)
			if test.err {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(test.expected, job); diff != "" {
				t.Errorf("job mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJobValuesRoundTrip(t *testing.T) {
	job := worker.JoinJob{Action: worker.ActionJoin, GuildID: "G1", ChannelID: "C1", SelfDeaf: true}

	got, err := worker.JobFromValues("", job.Values())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(job, got); diff != "" {
		t.Errorf("job mismatch (-want +got):\n%s", diff)
	}
}
