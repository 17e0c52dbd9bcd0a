package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/normanking/jarvis/internal/intent"
)

func TestHeuristics_Match(t *testing.T) {
	h := NewHeuristics()

	tests := []struct {
		input      string
		action     string
		confidence float64
	}{
		{"play", intent.ActionPlay, 1.0},
		{"pause", intent.ActionPause, 1.0},
		{"pause.", intent.ActionPause, 1.0},
		{"stop", intent.ActionPause, 0.95},
		{"resume", intent.ActionPlay, 0.95},
		{"start!", intent.ActionPlay, 0.95},
		{"mute", intent.ActionMute, 1.0},
		{"unmute", intent.ActionUnmute, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := h.Match(tt.input)
			assert.True(t, ok)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.confidence, got.Confidence)
			assert.Equal(t, intent.SourceHeuristic, got.Source)
			assert.True(t, got.Parameter.IsNull())
		})
	}

	for _, miss := range []string{"", "play the next one", "pause it please", "skip 30"} {
		_, ok := h.Match(miss)
		assert.False(t, ok, miss)
	}
}

func TestGrammar_Match(t *testing.T) {
	g := NewGrammar()

	tests := []struct {
		input  string
		action string
		param  intent.Param
	}{
		{"skip 30 seconds", intent.ActionSkip, intent.Number(30)},
		{"skip ahead 15", intent.ActionSkip, intent.Number(15)},
		{"go back 10 seconds", intent.ActionRewind, intent.Number(10)},
		{"rewind 5", intent.ActionRewind, intent.Number(5)},
		{"jump to 2 minutes", intent.ActionSeek, intent.Number(2)},
		{"skip to 90", intent.ActionSeek, intent.Number(90)},
		{"pause the video", intent.ActionPause, intent.Null()},
		{"hold on", intent.ActionPause, intent.Null()},
		{"continue", intent.ActionPlay, intent.Null()},
		{"normal speed please", intent.ActionNormalSpeed, intent.Null()},
		{"reset the speed", intent.ActionNormalSpeed, intent.Null()},
		{"increase the speed", intent.ActionSpeedUp, intent.Null()},
		{"speed up", intent.ActionSpeedUp, intent.Null()},
		{"speed up to 1.5", intent.ActionSpeedUp, intent.Number(1.5)},
		{"slow down a bit", intent.ActionSlowDown, intent.Null()},
		{"set volume to 40", intent.ActionSetVolume, intent.Number(40)},
		{"turn it up", intent.ActionIncreaseVolume, intent.Null()},
		{"quieter", intent.ActionDecreaseVolume, intent.Null()},
		{"unmute the sound", intent.ActionUnmute, intent.Null()},
		{"silence", intent.ActionMute, intent.Null()},
		{"summarize this", intent.ActionSummarize, intent.Null()},
		{"quiz me", intent.ActionQuiz, intent.Null()},
		{"play a video on cooking pasta", intent.ActionSearch, intent.String("cooking pasta")},
		{"search for jazz music", intent.ActionSearch, intent.String("jazz music")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := g.Match(tt.input)
			assert.True(t, ok)
			assert.Equal(t, tt.action, got.Action)
			assert.Equal(t, tt.param, got.Parameter)
			assert.Equal(t, intent.SourceGrammar, got.Source)
		})
	}
}

func TestGrammar_RequiredNumber(t *testing.T) {
	g := NewGrammar()

	for _, input := range []string{"skip", "rewind", "set volume", "what is this video about", ""} {
		_, ok := g.Match(input)
		assert.False(t, ok, input)
	}
}

func TestGrammar_Confidence(t *testing.T) {
	g := NewGrammar()

	final, _ := g.Match("pause the video")
	assert.Greater(t, final.Confidence, DefaultGrammarThreshold)

	weak, _ := g.Match("skip 30 seconds")
	assert.LessOrEqual(t, weak.Confidence, DefaultGrammarThreshold)

	search, _ := g.Match("find python tutorials")
	assert.Equal(t, 0.95, search.Confidence)
}

func TestExtractSearchQuery(t *testing.T) {
	tests := []struct {
		input string
		query string
		ok    bool
	}{
		{"play a video on cooking pasta", "cooking pasta", true},
		{"show me videos about black holes", "black holes", true},
		{"find python tutorials", "python tutorials", true},
		{"watch the latest news video", "the latest news", true},
		{"search for go", "", false},
		{"what is this video about", "", false},
		{"pause", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			query, ok := ExtractSearchQuery(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.query, query)
		})
	}
}
