package presentation

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Formatter handles output formatting
type Formatter struct {
	writer io.Writer
}

// NewFormatter creates a new formatter
func NewFormatter(writer io.Writer) *Formatter {
	return &Formatter{
		writer: writer,
	}
}

// FormatHandles formats a list of handles as indented JSON
func (f *Formatter) FormatHandles(handles []HandleDTO) error {
	if handles == nil {
		handles = []HandleDTO{}
	}
	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(handles)
}

// FormatTable formats handles as an aligned table
func (f *Formatter) FormatTable(handles []HandleDTO) error {
	tw := tabwriter.NewWriter(f.writer, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RANK\tNAME\tENDPOINT\tVERSION\tSOURCE\tID")
	for _, h := range handles {
		endpoint := h.Endpoint
		if !h.Available {
			endpoint = "(unavailable)"
		}
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", h.Rank, h.Name, endpoint, h.Version, h.Source, h.ID)
	}
	return tw.Flush()
}

// FormatEvent writes one event as a single JSON line
func (f *Formatter) FormatEvent(ev EventDTO) error {
	return json.NewEncoder(f.writer).Encode(ev)
}
