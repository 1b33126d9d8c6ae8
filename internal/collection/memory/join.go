package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/conveyor/internal/collection"
)

// joinRow is one accumulated row of an n-way declarative join: the join key
// plus the per-stage records matched so far.
type joinRow struct {
	key   string
	match bool
	parts map[string]map[string]any
}

// Join executes a planned n-way join. Rows must be map[string]any so the
// backend can extract key fields. Each non-left stage joins sequentially:
// inner when required, left-outer otherwise.
func (d *Dataset) Join(req *collection.JoinRequest) collection.Collection {
	return d.backend.derive(func(ctx context.Context) ([]any, error) {
		leftRecords, err := d.Collect(ctx)
		if err != nil {
			return nil, err
		}

		acc := make([]joinRow, 0, len(leftRecords))
		for _, rec := range leftRecords {
			row, err := asRow(req.LeftStage, rec)
			if err != nil {
				return nil, err
			}
			key, match := joinKey(row, req.LeftKeys, req.NullSafe)
			acc = append(acc, joinRow{
				key:   key,
				match: match,
				parts: map[string]map[string]any{req.LeftStage: row},
			})
		}

		for _, side := range req.ToJoin {
			rightRecords, err := side.Data.(*Dataset).Collect(ctx)
			if err != nil {
				return nil, err
			}
			index := make(map[string][]map[string]any, len(rightRecords))
			for _, rec := range rightRecords {
				row, err := asRow(side.StageName, rec)
				if err != nil {
					return nil, err
				}
				key, match := joinKey(row, side.Keys, req.NullSafe)
				if !match {
					continue
				}
				index[key] = append(index[key], row)
			}

			var next []joinRow
			for _, row := range acc {
				var matches []map[string]any
				if row.match {
					matches = index[row.key]
				}
				if len(matches) == 0 {
					if !side.Required {
						next = append(next, row)
					}
					continue
				}
				for _, m := range matches {
					parts := make(map[string]map[string]any, len(row.parts)+1)
					for stage, part := range row.parts {
						parts[stage] = part
					}
					parts[side.StageName] = m
					next = append(next, joinRow{key: row.key, match: row.match, parts: parts})
				}
			}
			acc = next
		}

		out := make([]any, 0, len(acc))
		for _, row := range acc {
			out = append(out, selectFields(req, row.parts))
		}
		return out, nil
	})
}

func asRow(stage string, rec any) (map[string]any, error) {
	row, ok := rec.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("join input %s: record %T is not a row", stage, rec)
	}
	return row, nil
}

// joinKey builds a composite key over the named fields. Without null-safe
// semantics a nil key field makes the row unmatchable.
func joinKey(row map[string]any, fields []string, nullSafe bool) (string, bool) {
	var b strings.Builder
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		value := row[field]
		if value == nil && !nullSafe {
			return "", false
		}
		fmt.Fprintf(&b, "%v", value)
	}
	return b.String(), true
}

func selectFields(req *collection.JoinRequest, parts map[string]map[string]any) map[string]any {
	out := make(map[string]any)
	if len(req.SelectedFields) == 0 {
		for _, side := range append([]string{req.LeftStage}, stageNames(req)...) {
			for field, value := range parts[side] {
				out[field] = value
			}
		}
		return out
	}
	for _, sel := range req.SelectedFields {
		name := sel.Alias
		if name == "" {
			name = sel.FieldName
		}
		part := parts[sel.StageName]
		if part == nil {
			out[name] = nil
			continue
		}
		out[name] = part[sel.FieldName]
	}
	return out
}

func stageNames(req *collection.JoinRequest) []string {
	names := make([]string, 0, len(req.ToJoin))
	for _, side := range req.ToJoin {
		names = append(names, side.StageName)
	}
	return names
}
