package boundary

// VoiceBridge is named in the component table as a Boundary adapter and
// specified at interface level only — voice output to an external
// collaborator is explicitly out of scope beyond this shape (spec §1,
// SPEC_FULL §C).
type VoiceBridge interface {
	Speak(text string) error
}

// NoopVoiceBridge discards Speak calls. It is the default wiring until a
// real bridge is configured.
type NoopVoiceBridge struct{}

func (NoopVoiceBridge) Speak(string) error { return nil }
