// Package apperr defines the error taxonomy shared across the avatar
// pipeline, mirroring the error handling design in §7: a small set of
// sentinel kinds that callers can test for with [errors.Is], wrapped with
// context via [fmt.Errorf].
package apperr

import "errors"

// Kind is a coarse error category used to decide how an error is surfaced
// to the client (visible event, swallowed, or canned apology) and whether
// it terminates the current turn.
type Kind error

var (
	// PersonaMissing is returned when a session references a persona ID the
	// Persona Store does not know about. Surfaced to the client as
	// llm_response_error; terminates the turn.
	PersonaMissing Kind = errors.New("persona missing")

	// UpstreamTimeout is returned when an upstream call (LLM completion)
	// exceeds its deadline. The assistant text is replaced by a canned
	// apology.
	UpstreamTimeout Kind = errors.New("upstream timeout")

	// UpstreamError wraps a failure from an external service (STT, LLM,
	// TTS, image generation). The session continues; the specific client
	// event emitted depends on which phase failed.
	UpstreamError Kind = errors.New("upstream error")

	// ProtocolError marks a malformed tool-call payload that could not be
	// fully salvaged. Best-effort salvage is attempted before this is
	// returned (see the orchestrator's argument-buffer parser).
	ProtocolError Kind = errors.New("protocol error")

	// Cancelled marks an orderly turn cancellation (barge-in, client end,
	// timeout-as-cancel). No client-visible error event is emitted for
	// this kind.
	Cancelled Kind = errors.New("cancelled")

	// TranscriptWriteError marks a failure to persist transcript messages.
	// It is logged and never fails the user-visible turn.
	TranscriptWriteError Kind = errors.New("transcript write error")

	// NoMediaReturned marks an image-generation response that completed
	// without producing any media asset.
	NoMediaReturned Kind = errors.New("no media returned")

	// LocalFetchFailed marks a failure fetching bytes from a local-only
	// source image URL before re-upload.
	LocalFetchFailed Kind = errors.New("local fetch failed")
)

// CannedApology is returned to callers in place of assistant text whenever
// the primary LLM stream fails (timeout or upstream error), per §7.
const CannedApology = "I apologize, but I'm having trouble processing your request right now. Could you please try again?"
