package campaign

import (
	"fmt"
	"io"
)

// Result is the outcome for one recipient. Err is nil on success.
type Result struct {
	Recipient string
	// MessageID is the provider-assigned id; empty when the provider does
	// not report one.
	MessageID string
	Err       error
}

// Report lists one Result per recipient processed, in input order.
type Report struct {
	Subject string
	Results []Result
}

// Sent returns the number of recipients the provider accepted.
func (r *Report) Sent() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the number of recipients that could not be sent.
func (r *Report) Failed() int {
	return len(r.Results) - r.Sent()
}

// WriteSummary prints one line per recipient followed by the totals.
func (r *Report) WriteSummary(w io.Writer) error {
	for _, res := range r.Results {
		var err error
		switch {
		case res.Err != nil:
			_, err = fmt.Fprintf(w, "FAIL  %s: %v\n", res.Recipient, res.Err)
		case res.MessageID != "":
			_, err = fmt.Fprintf(w, "OK    %s (%s)\n", res.Recipient, res.MessageID)
		default:
			_, err = fmt.Fprintf(w, "OK    %s\n", res.Recipient)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d sent, %d failed\n", r.Sent(), r.Failed())
	return err
}
