// Package combine merges N measurement stores into one. Union is the only
// merge operation, so combination is commutative, associative and
// order-independent: stores collected by parallel workers on different
// machines can be folded together in any order with the same result.
package combine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"covmeter/internal/debug"
	"covmeter/internal/store"
)

// AliasConflict reports that distinct recorded paths mapped to the same
// canonical path while their content signatures disagree. Merging them
// would mix measurements of different content, so the conflicting record is
// reported and left out instead of auto-resolved.
type AliasConflict struct {
	Canonical  string
	Context    string
	Signatures [2]string
}

func (c *AliasConflict) Error() string {
	return fmt.Sprintf("alias conflict at %s: signatures %s vs %s disagree",
		c.Canonical, c.Signatures[0], c.Signatures[1])
}

// SkippedInput names one input that could not be loaded. Combination of the
// remaining valid stores proceeds regardless.
type SkippedInput struct {
	Path string
	Err  error
}

// Report is the outcome of one combine operation.
type Report struct {
	Store     *store.Store
	Inputs    int
	Skipped   []SkippedInput
	Conflicts []*AliasConflict
}

// Stores merges in-memory stores. Each input's own alias rules are applied
// to its recorded paths before merging, so stores written under different
// filesystem layouts meet at their canonical paths.
func Stores(label string, stores ...*store.Store) (*store.Store, []*AliasConflict) {
	out := store.New(label)
	var conflicts []*AliasConflict
	for _, in := range stores {
		if in == nil {
			continue
		}
		for _, path := range in.Paths() {
			canonical := in.Canonical(path)
			for _, ctxLabel := range in.Contexts(path) {
				rec, _ := in.Record(path, ctxLabel)
				if err := out.Add(canonical, ctxLabel, rec); err != nil {
					kept := ""
					if existing, ok := out.Record(canonical, ctxLabel); ok {
						kept = existing.Signature
					}
					conflicts = append(conflicts, &AliasConflict{
						Canonical:  canonical,
						Context:    ctxLabel,
						Signatures: [2]string{kept, rec.Signature},
					})
				}
			}
		}
	}
	return out, conflicts
}

// Files loads the given store files with bounded parallelism and merges the
// ones that load. Unreadable inputs are reported in the returned Report and
// skipped; one bad input never aborts the whole combination.
func Files(ctx context.Context, label string, paths []string, parallelism int) (*Report, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no store files to combine")
	}
	if parallelism <= 0 {
		parallelism = 4
	}

	loaded := make([]*store.Store, len(paths))
	var mu sync.Mutex
	var skipped []SkippedInput

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := store.ReadFile(path)
			if err != nil {
				debug.Logger().Warn().Str("path", path).Err(err).Msg("skipping unreadable store")
				mu.Lock()
				skipped = append(skipped, SkippedInput{Path: path, Err: err})
				mu.Unlock()
				return nil
			}
			loaded[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Path < skipped[j].Path })

	merged, conflicts := Stores(label, loaded...)
	return &Report{
		Store:     merged,
		Inputs:    len(paths),
		Skipped:   skipped,
		Conflicts: conflicts,
	}, nil
}
