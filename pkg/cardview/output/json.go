package output

import (
	"bytes"
	"encoding/json"

	"github.com/jamesainslie/cardview/pkg/cardview/types"
)

// JSONFormatter formats the snapshot as indented JSON for scripting.
type JSONFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *JSONFormatter) Format(w *bytes.Buffer, snap types.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
