package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/memos"
)

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "–"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

// resolveMemo accepts a full memo ID or an unambiguous prefix.
func resolveMemo(cmd *cobra.Command, store *memos.Store, ref string) (*memos.Memo, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("memo id required")
	}

	memo, err := store.ByID(cmd.Context(), ref)
	if err != nil {
		return nil, fmt.Errorf("look up memo: %w", err)
	}
	if memo != nil {
		return memo, nil
	}

	all, err := store.All(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("list memos: %w", err)
	}
	var matches []*memos.Memo
	for _, candidate := range all {
		if strings.HasPrefix(candidate.ID, ref) {
			matches = append(matches, candidate)
		}
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no memo matches %q", ref)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("memo id %q is ambiguous (%d matches)", ref, len(matches))
	}
}
