package penne

import (
	"io"
)

// TableColumn describes one column of a subscribed table.
type TableColumn struct {
	Name string
	Type string // TEXT, REAL or INTEGER
}

// Selection is a named set of rows in a table.
type Selection struct {
	Name      string
	Rows      []int64
	RowRanges [][2]int64
}

func selectionFromWire(v any) (Selection, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Selection{}, false
	}
	sel := Selection{}
	sel.Name, ok = m["name"].(string)
	if !ok {
		return Selection{}, false
	}
	if rows, ok := m["rows"].([]any); ok {
		for _, r := range rows {
			if n, ok := wireInt(r); ok {
				sel.Rows = append(sel.Rows, n)
			}
		}
	}
	if ranges, ok := m["row_ranges"].([]any); ok {
		for _, r := range ranges {
			pair, ok := r.([]any)
			if !ok || len(pair) != 2 {
				continue
			}
			from, ok1 := wireInt(pair[0])
			to, ok2 := wireInt(pair[1])
			if ok1 && ok2 {
				sel.RowRanges = append(sel.RowRanges, [2]int64{from, to})
			}
		}
	}
	return sel, true
}

func wireInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// Table mirrors a server-side table. Its built-in signal handlers keep
// the selection map current; data rows themselves stay on the server
// and reach the application through the handlers it binds.
type Table struct {
	Base

	Columns    []TableColumn
	Selections map[string]Selection
}

func NewTable() *Table {
	return &Table{
		Base:       Base{name: "Unnamed Table Delegate"},
		Selections: map[string]Selection{},
	}
}

// OnNew injects capabilities, resets local table state and links the
// built-in signal handlers.
func (t *Table) OnNew(p Payload) error {
	if err := t.Base.OnNew(p); err != nil {
		return err
	}
	t.resetTable()
	t.relinkSignals()
	return nil
}

// OnUpdate re-injects and re-links: the generic injection pass must not
// permanently overwrite the built-ins.
func (t *Table) OnUpdate(p Payload) error {
	if err := t.Base.OnUpdate(p); err != nil {
		return err
	}
	t.relinkSignals()
	return nil
}

func (t *Table) relinkSignals() {
	t.signals["noo::tbl_reset"] = func([]any) { t.resetTable() }
	t.signals["noo::tbl_rows_removed"] = t.removeRows
	t.signals["noo::tbl_updated"] = t.updateRows
	t.signals["noo::tbl_selection_updated"] = t.updateSelection
}

func (t *Table) resetTable() {
	t.Selections = map[string]Selection{}
}

func (t *Table) removeRows(args []any) {
	keys := intList(argAt(args, 0))
	t.client.log.Debug("table rows removed", "table", t.id, "keys", keys)
}

func (t *Table) updateRows(args []any) {
	keys := intList(argAt(args, 0))
	t.client.log.Debug("table rows updated", "table", t.id, "keys", keys)
}

func (t *Table) updateSelection(args []any) {
	sel, ok := selectionFromWire(argAt(args, 0))
	if !ok {
		t.client.log.Warn("table selection update with bad payload", "table", t.id)
		return
	}
	t.Selections[sel.Name] = sel
	t.client.log.Debug("table selection updated", "table", t.id, "selection", sel.Name)
}

func (t *Table) onTableInit(result any) {
	m, ok := result.(map[string]any)
	if !ok {
		return
	}
	t.Columns = t.Columns[:0]
	if cols, ok := m["columns"].([]any); ok {
		for _, c := range cols {
			cm, ok := c.(map[string]any)
			if !ok {
				continue
			}
			col := TableColumn{}
			col.Name, _ = cm["name"].(string)
			col.Type, _ = cm["type"].(string)
			t.Columns = append(t.Columns, col)
		}
	}
	if sels, ok := m["selections"].([]any); ok {
		for _, s := range sels {
			if sel, ok := selectionFromWire(s); ok {
				t.Selections[sel.Name] = sel
			}
		}
	}
	t.client.log.Debug("table initialized", "table", t.id, "columns", len(t.Columns))
}

// Subscribe asks the server to stream this table's data. The injected
// tbl_subscribe method replies with the table's initial state, which is
// folded into the delegate before onDone runs.
func (t *Table) Subscribe(onDone OnDone) error {
	return t.Call("tbl_subscribe", nil, func(result any, err error) {
		if err == nil {
			t.onTableInit(result)
		}
		if onDone != nil {
			onDone(result, err)
		}
	})
}

// RequestInsert appends rows to the end of the table.
func (t *Table) RequestInsert(rows [][]any, onDone OnDone) error {
	return t.Call("tbl_insert", []any{rows}, onDone)
}

// RequestUpdate replaces the rows under keys with new values.
func (t *Table) RequestUpdate(keys []int64, rows [][]any, onDone OnDone) error {
	return t.Call("tbl_update", []any{keys, rows}, onDone)
}

// RequestRemove deletes the rows under keys.
func (t *Table) RequestRemove(keys []int64, onDone OnDone) error {
	return t.Call("tbl_remove", []any{keys}, onDone)
}

// RequestClear empties the table.
func (t *Table) RequestClear(onDone OnDone) error {
	return t.Call("tbl_clear", nil, onDone)
}

// RequestUpdateSelection replaces the named selection with keys.
func (t *Table) RequestUpdateSelection(name string, keys []int64, onDone OnDone) error {
	return t.Call("tbl_update_selection", []any{name, map[string]any{"rows": keys}}, onDone)
}

// ShowMethods writes the table's callable methods to w.
func (t *Table) ShowMethods(w io.Writer) { t.showMethods(w) }

func argAt(args []any, i int) any {
	if i >= len(args) {
		return nil
	}
	return args[i]
}

func intList(v any) []int64 {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]int64, 0, len(list))
	for _, el := range list {
		if n, ok := wireInt(el); ok {
			out = append(out, n)
		}
	}
	return out
}
