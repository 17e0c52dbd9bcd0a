package intent

import (
	"fmt"
	"strings"
)

// Player actions understood by the action dispatcher.
const (
	ActionSearch         = "search"
	ActionPlay           = "play"
	ActionPause          = "pause"
	ActionSkip           = "skip"
	ActionRewind         = "rewind"
	ActionSeek           = "seek"
	ActionSpeedUp        = "speedUp"
	ActionSlowDown       = "slowDown"
	ActionNormalSpeed    = "normalSpeed"
	ActionSetVolume      = "setVolume"
	ActionIncreaseVolume = "increaseVolume"
	ActionDecreaseVolume = "decreaseVolume"
	ActionMute           = "mute"
	ActionUnmute         = "unmute"
	ActionSummarize      = "summarize"
	ActionQuiz           = "quiz"
)

// Action is one catalog entry: a name and a natural-language description
// the remote classifier matches against.
type Action struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Catalog is an ordered list of supported actions.
type Catalog []Action

// DefaultCatalog returns the media-player action catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		{ActionSearch, "Search for videos (param: search query)"},
		{ActionPlay, "Start or resume video playback"},
		{ActionPause, "Pause the video"},
		{ActionSkip, "Skip forward by X seconds (extract number from command)"},
		{ActionRewind, "Go backward by X seconds (extract number from command)"},
		{ActionSeek, "Go to specific timestamp in seconds"},
		{ActionSpeedUp, "Increase playback speed (param: percentage increase or null for 25% increment)"},
		{ActionSlowDown, "Decrease playback speed (param: percentage decrease or null for 25% decrement)"},
		{ActionNormalSpeed, "Reset playback speed to 1x"},
		{ActionSetVolume, "Set volume to specific level (param: 0-100)"},
		{ActionIncreaseVolume, "Increase volume (param: amount or null for 10% increment)"},
		{ActionDecreaseVolume, "Decrease volume (param: amount or null for 10% decrement)"},
		{ActionMute, "Mute the audio"},
		{ActionUnmute, "Unmute the audio"},
		{ActionSummarize, "Generate AI summary of video transcript"},
		{ActionQuiz, "Generate quiz questions from video content"},
	}
}

// Has reports whether name is in the catalog. The conversational query
// action is always accepted.
func (c Catalog) Has(name string) bool {
	if name == ActionQuery {
		return true
	}
	for _, a := range c {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Names returns the action names in catalog order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, a := range c {
		names[i] = a.Name
	}
	return names
}

// Describe renders the catalog as a bulleted list for prompts.
func (c Catalog) Describe() string {
	var sb strings.Builder
	for i, a := range c {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "- %s: %s", a.Name, a.Description)
	}
	return sb.String()
}

// Validate checks that every entry has a unique, non-empty name.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("intent: empty action catalog")
	}
	seen := make(map[string]bool, len(c))
	for _, a := range c {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("intent: catalog entry with empty name")
		}
		if seen[a.Name] {
			return fmt.Errorf("intent: duplicate catalog action %q", a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}
