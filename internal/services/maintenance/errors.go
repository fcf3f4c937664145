package maintenance

import (
	"fmt"
	"strings"

	"github.com/fgeck/webmaint/internal/models"
	"github.com/fgeck/webmaint/internal/services/timeparse"
)

// InputError reports an end time the parser could not understand.
// Nothing has been prompted or changed when it is returned.
type InputError struct {
	Value string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("unable to parse until value %q: it should be a local time string, e.g. %s",
		e.Value, timeparse.ExampleFormats)
}

// RemoteExecutionError reports a failed file operation on one host.
type RemoteExecutionError struct {
	Host   models.Host
	Step   string
	Output string
	Err    error
}

func (e *RemoteExecutionError) Error() string {
	msg := fmt.Sprintf("%s: %s: %v", e.Host, e.Step, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *RemoteExecutionError) Unwrap() error {
	return e.Err
}
