package commands

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Canonical command tokens published on the control topic.
const (
	TokenAuto     = "auto"
	TokenManual   = "manual"
	TokenRecolher = "recolher"
	TokenLiberar  = "liberar"
)

// Descriptor maps a normalized text pattern to a canonical command and the
// acknowledgment shown to the user before the command is published.
type Descriptor struct {
	Pattern *regexp.Regexp
	Command string
	Ack     string
}

// descriptors is evaluated in order; the first matching pattern wins.
var descriptors = []Descriptor{
	{Pattern: regexp.MustCompile(`^(?:modo )?auto$`), Command: TokenAuto, Ack: "✅ Ativando modo automático..."},
	{Pattern: regexp.MustCompile(`^(?:modo )?manual$`), Command: TokenManual, Ack: "✅ Ativando modo manual..."},
	{Pattern: regexp.MustCompile(`^recolher$`), Command: TokenRecolher, Ack: "🔄 Tentando recolher varal..."},
	{Pattern: regexp.MustCompile(`^liberar$`), Command: TokenLiberar, Ack: "🔄 Tentando liberar varal..."},
}

// usage lists the phrases shown in the greeting and help replies.
var usage = []string{"modo auto", "modo manual", "liberar", "recolher"}

// Descriptors returns a copy of the command table.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Normalize lowercases s, strips diacritics, collapses whitespace runs into a
// single space and trims the result.
func Normalize(s string) string {
	s = strings.ToLower(s)

	// The chain keeps internal state, so a fresh one is built per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, s); err == nil {
		s = stripped
	}

	return strings.Join(strings.Fields(s), " ")
}

// Match normalizes text and returns the first descriptor whose pattern matches.
func Match(text string) (Descriptor, bool) {
	normalized := Normalize(text)
	for _, d := range descriptors {
		if d.Pattern.MatchString(normalized) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// IsMotion reports whether the command physically moves the clothesline and
// is therefore subject to the movement cooldown.
func IsMotion(command string) bool {
	return command == TokenRecolher || command == TokenLiberar
}

// GreetingText is the reply to the /start trigger.
func GreetingText() string {
	return "Olá! Eu controlo o seu Varal Inteligente via MQTT.\n\nComandos:\n" + usageList()
}

// HelpText is the reply sent when an inbound message matches no command.
func HelpText() string {
	return "Não entendi 🤔. Tente:\n" + usageList()
}

func usageList() string {
	var b strings.Builder
	for _, u := range usage {
		b.WriteString("• ")
		b.WriteString(u)
		b.WriteString("\n")
	}
	return b.String()
}
