package wyoming

// Event types exchanged with wake-detection clients.
const (
	// TypeDescribe asks the service to describe its capabilities.
	TypeDescribe = "describe"

	// TypeInfo is the reply to a describe request.
	TypeInfo = "info"

	// TypeDetect selects the wake keyword(s) to listen for.
	TypeDetect = "detect"

	// TypeDetection reports a detected keyword.
	TypeDetection = "detection"

	// TypeNotDetected reports an utterance that ended without a match.
	TypeNotDetected = "not-detected"

	// TypeAudioStart marks the beginning of an utterance.
	TypeAudioStart = "audio-start"

	// TypeAudioChunk carries PCM audio in the event payload.
	TypeAudioChunk = "audio-chunk"

	// TypeAudioStop marks the end of an utterance.
	TypeAudioStop = "audio-stop"

	// TypeError reports a request that could not be honored.
	TypeError = "error"
)

// AudioMeta is the format metadata shared by audio-start, audio-chunk, and
// audio-stop events. Width is in bytes per sample.
type AudioMeta struct {
	Rate      int   `json:"rate"`
	Width     int   `json:"width"`
	Channels  int   `json:"channels"`
	Timestamp int64 `json:"timestamp"`
}

// Detect asks the service to listen for the named keywords. The service
// activates the first name it recognizes.
type Detect struct {
	Names []string `json:"names,omitempty"`
}

// Detection reports a keyword match, carrying the timestamp of the audio
// chunk whose frame produced it.
type Detection struct {
	Name      string `json:"name"`
	Timestamp int64  `json:"timestamp"`
}

// Error reports a failed request, e.g. an unknown keyword name.
type Error struct {
	Text string `json:"text"`
	Code string `json:"code,omitempty"`
}

// Attribution credits the upstream project behind a program or model.
type Attribution struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// WakeModel describes one selectable wake keyword.
type WakeModel struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Phrase      string      `json:"phrase"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Languages   []string    `json:"languages"`
	Version     string      `json:"version"`
}

// WakeProgram describes a wake detection service and its models.
type WakeProgram struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Attribution Attribution `json:"attribution"`
	Installed   bool        `json:"installed"`
	Version     string      `json:"version"`
	Models      []WakeModel `json:"models"`
}

// Info is the capability description sent in reply to a describe request.
type Info struct {
	Wake []WakeProgram `json:"wake,omitempty"`
}
