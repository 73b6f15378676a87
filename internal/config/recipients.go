package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// recipientsFile is the on-disk recipient list format.
type recipientsFile struct {
	Recipients *[]string `json:"recipients"`
}

// LoadRecipients reads a JSON object of the form {"recipients": [...]}.
// Order is kept and duplicates are not removed. Every error wraps
// ErrMalformedInput.
func LoadRecipients(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read recipients file: %w", ErrMalformedInput, err)
	}

	var file recipientsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: failed to parse recipients file %s: %v", ErrMalformedInput, path, err)
	}

	if file.Recipients == nil {
		return nil, fmt.Errorf("%w: recipients file %s has no \"recipients\" field", ErrMalformedInput, path)
	}
	if len(*file.Recipients) == 0 {
		return nil, fmt.Errorf("%w: recipients file %s lists no recipients", ErrMalformedInput, path)
	}

	recipients := make([]string, 0, len(*file.Recipients))
	for i, r := range *file.Recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			return nil, fmt.Errorf("%w: recipients file %s: entry %d is blank", ErrMalformedInput, path, i)
		}
		recipients = append(recipients, r)
	}

	return recipients, nil
}
