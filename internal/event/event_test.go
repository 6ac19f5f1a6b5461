package event

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Kind
	}{
		{
			name: "health check",
			body: `{"event_type":"agent.health_check","timestamp":"2025-10-30T07:02:11Z"}`,
			want: KindHealthCheck,
		},
		{
			name: "job invitation",
			body: `{"event_type":"agent.job.invitation","job_post_id":"x"}`,
			want: KindJobInvitation,
		},
		{
			name: "job message",
			body: `{"event_type":"agent.job.message","job_post_id":"x"}`,
			want: KindJobMessage,
		},
		{
			name: "job feedback",
			body: `{"event_type":"agent.job.feedback","job_post_id":"x"}`,
			want: KindJobFeedback,
		},
		{
			name: "explicit type wins over legacy shape",
			body: `{"event_type":"agent.job.invitation","job_post_id":"x","agent_ids":["y"]}`,
			want: KindJobInvitation,
		},
		{
			name: "legacy invitation from shape",
			body: `{"job_post_id":"x","agent_ids":["y"]}`,
			want: KindLegacyJobInvitation,
		},
		{
			name: "legacy client feedback by message_type",
			body: `{"message_type":"client_feedback"}`,
			want: KindClientFeedback,
		},
		{
			name: "legacy client feedback by attempt shape",
			body: `{"attempt_id":"a1","client_message":"please revise"}`,
			want: KindClientFeedback,
		},
		{
			name: "attempt without message is unclassified",
			body: `{"attempt_id":"a1"}`,
			want: KindUnclassified,
		},
		{
			name: "unknown event_type is unclassified",
			body: `{"event_type":"agent.something_new"}`,
			want: KindUnclassified,
		},
		{
			name: "empty object",
			body: `{}`,
			want: KindUnclassified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse([]byte(tt.body))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := Classify(p); got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	if _, err := Parse([]byte("{not json")); err == nil {
		t.Fatal("Parse() expected error for malformed JSON")
	}
}
