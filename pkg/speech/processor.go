// Package speech defines the boundary to the external speech pipeline:
// transcription, dialog response generation, and synthesis. The gateway
// consumes this interface; it never decides what the assistant says.
package speech

import (
	"context"
)

// Processor is the speech pipeline consumed by the audio router and the
// call registry.
type Processor interface {
	// Transcribe converts one raw audio chunk into text. An empty string
	// with a nil error means no speech was detected.
	Transcribe(ctx context.Context, audio []byte) (string, error)

	// GenerateResponse produces the assistant's reply text for a
	// transcribed utterance within a dialog session.
	GenerateResponse(ctx context.Context, sessionID, text string) (string, error)

	// Synthesize converts reply text into raw audio.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
