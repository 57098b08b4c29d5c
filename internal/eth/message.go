package eth

import (
	"strconv"
	"strings"
	"time"
)

// MessageVersion is the EIP-4361 message version
const MessageVersion = "1"

// ChallengeMessage holds every field rendered into a sign-in message
type ChallengeMessage struct {
	Domain    string
	Address   string
	Statement string
	URI       string
	ChainID   int64
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RequestID string
}

// String renders the message in the EIP-4361 layout. The output depends only
// on the fields, so a stored challenge always renders the same bytes.
func (m ChallengeMessage) String() string {
	var b strings.Builder
	b.WriteString(m.Domain)
	b.WriteString(" wants you to sign in with your Ethereum account:\n")
	b.WriteString(m.Address)
	b.WriteString("\n\n")
	if m.Statement != "" {
		b.WriteString(m.Statement)
		b.WriteString("\n\n")
	}
	writeField(&b, "URI", m.URI)
	writeField(&b, "Version", MessageVersion)
	writeField(&b, "Chain ID", strconv.FormatInt(m.ChainID, 10))
	writeField(&b, "Nonce", m.Nonce)
	writeField(&b, "Issued At", formatTime(m.IssuedAt))
	writeField(&b, "Expiration Time", formatTime(m.ExpiresAt))
	b.WriteString("Request ID: ")
	b.WriteString(m.RequestID)
	return b.String()
}

// Bytes is the exact payload a wallet signs
func (m ChallengeMessage) Bytes() []byte {
	return []byte(m.String())
}

func writeField(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteString(name)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteByte('\n')
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
