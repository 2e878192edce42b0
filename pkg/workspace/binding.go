package workspace

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Bindings returns the fixed set of named capability variables injected into
// every script scope:
//
//	doc       — the design document: elements/add/get_param/set_param/delete
//	selection — the active element selection: get/set
//	output    — textual result surface: write
//
// All document operations go through the scope's transaction; nothing is
// observable until the scope commits. The enumeration documented in
// prompt.CapabilityVars must stay in sync with this set.
func (s *Scope) Bindings(out io.Writer) starlark.StringDict {
	doc := &starlarkstruct.Module{
		Name: "doc",
		Members: starlark.StringDict{
			"elements":  starlark.NewBuiltin("elements", s.stElements),
			"add":       starlark.NewBuiltin("add", s.stAdd),
			"get_param": starlark.NewBuiltin("get_param", s.stGetParam),
			"set_param": starlark.NewBuiltin("set_param", s.stSetParam),
			"delete":    starlark.NewBuiltin("delete", s.stDelete),
		},
	}

	selection := &starlarkstruct.Module{
		Name: "selection",
		Members: starlark.StringDict{
			"get": starlark.NewBuiltin("get", s.stSelectionGet),
			"set": starlark.NewBuiltin("set", s.stSelectionSet),
		},
	}

	output := &starlarkstruct.Module{
		Name: "output",
		Members: starlark.StringDict{
			"write": starlark.NewBuiltin("write", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var text string
				if err := starlark.UnpackArgs(b.Name(), args, kwargs, "text", &text); err != nil {
					return nil, err
				}
				if _, err := io.WriteString(out, text); err != nil {
					return nil, fmt.Errorf("output.write: %w", err)
				}
				return starlark.None, nil
			}),
		},
	}

	return starlark.StringDict{
		"doc":       doc,
		"selection": selection,
		"output":    output,
	}
}

// stElements implements doc.elements(category=None) → list of element dicts.
func (s *Scope) stElements(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var category string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "category?", &category); err != nil {
		return nil, err
	}

	query := `SELECT id, category, name FROM elements`
	var queryArgs []any
	if category != "" {
		query += ` WHERE category = ?`
		queryArgs = append(queryArgs, category)
	}
	query += ` ORDER BY id`

	rows, err := s.tx.Query(query, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("doc.elements: %w", err)
	}
	defer rows.Close()

	list := starlark.NewList(nil)
	for rows.Next() {
		var el Element
		if err := rows.Scan(&el.ID, &el.Category, &el.Name); err != nil {
			return nil, fmt.Errorf("doc.elements: %w", err)
		}
		entry := starlark.NewDict(3)
		_ = entry.SetKey(starlark.String("id"), starlark.MakeInt64(el.ID))
		_ = entry.SetKey(starlark.String("category"), starlark.String(el.Category))
		_ = entry.SetKey(starlark.String("name"), starlark.String(el.Name))
		if err := list.Append(entry); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("doc.elements: %w", err)
	}
	return list, nil
}

// stAdd implements doc.add(category, name) → element id.
func (s *Scope) stAdd(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var category, name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "category", &category, "name", &name); err != nil {
		return nil, err
	}
	if category == "" || name == "" {
		return nil, fmt.Errorf("doc.add: category and name must be non-empty")
	}

	res, err := s.tx.Exec(`INSERT INTO elements (category, name) VALUES (?, ?)`, category, name)
	if err != nil {
		return nil, fmt.Errorf("doc.add: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("doc.add: %w", err)
	}
	return starlark.MakeInt64(id), nil
}

// stGetParam implements doc.get_param(id, name) → value or None.
func (s *Scope) stGetParam(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id int64
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id, "name", &name); err != nil {
		return nil, err
	}

	var value string
	err := s.tx.QueryRow(`SELECT value FROM parameters WHERE element_id = ? AND name = ?`, id, name).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return starlark.None, nil
		}
		return nil, fmt.Errorf("doc.get_param: %w", err)
	}
	return starlark.String(value), nil
}

// stSetParam implements doc.set_param(id, name, value). Values are stored as
// text; string, int, float, and bool values are accepted.
func (s *Scope) stSetParam(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id int64
	var name string
	var value starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id, "name", &name, "value", &value); err != nil {
		return nil, err
	}

	text, err := valueToText(value)
	if err != nil {
		return nil, fmt.Errorf("doc.set_param: %w", err)
	}

	var exists int
	if err := s.tx.QueryRow(`SELECT COUNT(*) FROM elements WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("doc.set_param: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("doc.set_param: no element with id %d", id)
	}

	_, err = s.tx.Exec(
		`INSERT INTO parameters (element_id, name, value) VALUES (?, ?, ?)
		 ON CONFLICT(element_id, name) DO UPDATE SET value = excluded.value`,
		id, name, text,
	)
	if err != nil {
		return nil, fmt.Errorf("doc.set_param: %w", err)
	}
	return starlark.None, nil
}

// stDelete implements doc.delete(id).
func (s *Scope) stDelete(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var id int64
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "id", &id); err != nil {
		return nil, err
	}

	res, err := s.tx.Exec(`DELETE FROM elements WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("doc.delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("doc.delete: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("doc.delete: no element with id %d", id)
	}
	return starlark.None, nil
}

// stSelectionGet implements selection.get() → list of ids.
func (s *Scope) stSelectionGet(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	list := starlark.NewList(nil)
	for _, id := range s.selection {
		if err := list.Append(starlark.MakeInt64(id)); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// stSelectionSet implements selection.set(ids).
func (s *Scope) stSelectionSet(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var ids *starlark.List
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "ids", &ids); err != nil {
		return nil, err
	}

	selection := make([]int64, 0, ids.Len())
	for i := 0; i < ids.Len(); i++ {
		var id int64
		if err := starlark.AsInt(ids.Index(i), &id); err != nil {
			return nil, fmt.Errorf("selection.set: element %d: %w", i, err)
		}
		selection = append(selection, id)
	}
	s.selection = selection
	return starlark.None, nil
}

// valueToText converts a Starlark scalar to its stored text form.
func valueToText(v starlark.Value) (string, error) {
	switch val := v.(type) {
	case starlark.String:
		return string(val), nil
	case starlark.Int:
		return val.String(), nil
	case starlark.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), nil
	case starlark.Bool:
		return strconv.FormatBool(bool(val)), nil
	default:
		return "", fmt.Errorf("unsupported value type %s", v.Type())
	}
}
