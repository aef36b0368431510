package guard

import "strings"

func init() {
	Register("control_chars", func() Guard { return &ControlCharsGuard{} })
}

// ControlCharsGuard rejects queries containing characters that could smuggle
// line breaks or NUL bytes into downstream provider queries.
type ControlCharsGuard struct{}

func (g *ControlCharsGuard) Name() string {
	return "control_chars"
}

func (g *ControlCharsGuard) ReturnCodes() []string {
	return []string{"invalid_characters"}
}

func (g *ControlCharsGuard) ValidateConfig(settings map[string]any) error {
	return nil
}

func (g *ControlCharsGuard) Check(query string) Result {
	if strings.ContainsAny(query, "\n\r\x00") {
		return Reject("invalid_characters")
	}
	return Accept(query)
}
