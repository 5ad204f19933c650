package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordClassifier(t *testing.T) {
	classifier := NewKeywordClassifier()

	tests := []struct {
		name    string
		message string
		want    Intent
	}{
		{
			name:    "plain question routes to faq",
			message: "What are the clinic's opening hours?",
			want:    IntentFAQ,
		},
		{
			name:    "question mark alone is a question cue",
			message: "Parking nearby?",
			want:    IntentFAQ,
		},
		{
			name:    "question with booking keyword routes to tools",
			message: "What slots are available tomorrow?",
			want:    IntentTool,
		},
		{
			name:    "booking request routes to tools",
			message: "I want to book an appointment with Dr. Smith",
			want:    IntentTool,
		},
		{
			name:    "statement without cues routes to tools",
			message: "My name is Jane Doe, jane@example.com",
			want:    IntentTool,
		},
		{
			name:    "cues are case insensitive",
			message: "WHERE IS THE CLINIC LOCATED",
			want:    IntentFAQ,
		},
		{
			name:    "reschedule mentions schedule keyword",
			message: "How do I reschedule?",
			want:    IntentTool,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifier.Classify(tt.message))
		})
	}
}
