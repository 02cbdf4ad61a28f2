package generator

import (
	"bufio"
	"io"

	"github.com/pingcap/errors"
)

// Handshake is the fixed stdin script DIGen expects before it starts writing:
// an empty line to pass its banner, then the license confirmation.
type Handshake struct {
	InitialPrompt     string
	ConfirmationToken string
}

// DefaultHandshake is the script accepted by DIGen.
var DefaultHandshake = Handshake{
	InitialPrompt:     "\n",
	ConfirmationToken: "YES\n",
}

// Send writes the prompt answer and the confirmation in order, flushing after
// each so the child sees them as two separate inputs.
func (h Handshake) Send(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, msg := range []string{h.InitialPrompt, h.ConfirmationToken} {
		if _, err := bw.WriteString(msg); err != nil {
			return errors.Trace(err)
		}
		if err := bw.Flush(); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
