package utils

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteSSEEvent writes one named server-sent event with a JSON payload
func WriteSSEEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// WriteSSEMessage writes an unnamed event carrying {"message": ...}
func WriteSSEMessage(w io.Writer, message string) error {
	return WriteSSEEvent(w, "message", map[string]string{"message": message})
}
