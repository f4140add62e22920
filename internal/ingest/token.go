package ingest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ParseToken extracts the test uuid from a token of the form "<uuid>_<nonce>".
func ParseToken(token string) (uuid.UUID, error) {
	head, _, _ := strings.Cut(token, "_")
	if head == "" {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}

	id, err := uuid.Parse(head)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrMalformedToken, token)
	}
	return id, nil
}
