package sink

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"granary/store"
)

// ValidateCatalog confirms every required destination already exists in the
// store. It runs once, before any plan is compiled, and reports every missing
// destination in one error rather than stopping at the first.
func ValidateCatalog(ctx context.Context, sess store.Session, required []string) error {
	existing, err := sess.Tables(ctx)
	if err != nil {
		return fmt.Errorf("sink: fetch catalog: %w", err)
	}
	if len(existing) == 0 {
		return fmt.Errorf("sink: store catalog is empty, expected tables %v", required)
	}

	have := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		have[t] = struct{}{}
	}

	missing := append([]string(nil), required...)
	sort.Strings(missing)

	var result *multierror.Error
	for _, t := range missing {
		if _, ok := have[t]; !ok {
			result = multierror.Append(result, fmt.Errorf("destination table %q does not exist", t))
		}
	}
	if result != nil {
		return fmt.Errorf("sink: catalog validation failed: %w", result)
	}
	return nil
}
