package emotion

// PauseStyle controls how aggressively pauses are inserted into spoken text.
type PauseStyle string

const (
	PauseSoft   PauseStyle = "SOFT"
	PauseNormal PauseStyle = "NORMAL"
	PauseStrong PauseStyle = "STRONG"
)

// Profile is the prosody applied to an utterance spoken with a given tone.
// Rate, Pitch and Volume use the platform's 1.0-is-neutral scale.
type Profile struct {
	Rate        float64
	Pitch       float64
	Volume      float64
	PauseStyle  PauseStyle
	Description string
}

var profiles = map[Emotion]Profile{
	Calm:      {Rate: 0.92, Pitch: 0.98, Volume: 1.0, PauseStyle: PauseSoft, Description: "차분하고 담담한 톤"},
	Comfort:   {Rate: 0.90, Pitch: 1.02, Volume: 1.0, PauseStyle: PauseSoft, Description: "따뜻하고 위로하는 톤"},
	Encourage: {Rate: 0.98, Pitch: 1.05, Volume: 1.0, PauseStyle: PauseNormal, Description: "활기차고 격려하는 톤"},
	Hope:      {Rate: 0.95, Pitch: 1.06, Volume: 1.0, PauseStyle: PauseNormal, Description: "밝고 희망적인 톤"},
	Joy:       {Rate: 1.02, Pitch: 1.10, Volume: 1.0, PauseStyle: PauseNormal, Description: "기쁘고 즐거운 톤"},
	Firm:      {Rate: 0.94, Pitch: 0.95, Volume: 1.0, PauseStyle: PauseStrong, Description: "단호하고 확고한 톤"},
}

// ProfileFor returns the prosody profile for e. Unknown values get the
// [Calm] profile so the lookup never fails.
func ProfileFor(e Emotion) Profile {
	if p, ok := profiles[e]; ok {
		return p
	}
	return profiles[Calm]
}
