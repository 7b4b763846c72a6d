package nebula

import (
	nebulago "github.com/vesoft-inc/nebula-go/v3"
)

// rowMap is one result row with cells unwrapped to plain Go values.
type rowMap map[string]interface{}

// parseResultSet unwraps every cell of a result set. The client returns
// a tagged value per cell; domain objects are only built from plain
// values.
func parseResultSet(rs *nebulago.ResultSet) ([]rowMap, error) {
	rows := make([]rowMap, 0, rs.GetRowSize())
	colNames := rs.GetColNames()

	for i := 0; i < rs.GetRowSize(); i++ {
		record, err := rs.GetRowValuesByIndex(i)
		if err != nil {
			return nil, err
		}

		row := make(rowMap, len(colNames))
		for _, col := range colNames {
			wrapper, err := record.GetValueByColName(col)
			if err != nil {
				return nil, err
			}
			row[col] = unwrapValue(wrapper)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// unwrapValue converts a tagged cell value into a plain Go value.
// Unhandled kinds (vertex, edge, path) fall back to their string form.
func unwrapValue(w *nebulago.ValueWrapper) interface{} {
	switch {
	case w.IsNull():
		return nil
	case w.IsString():
		v, _ := w.AsString()
		return v
	case w.IsInt():
		v, _ := w.AsInt()
		return v
	case w.IsFloat():
		v, _ := w.AsFloat()
		return v
	case w.IsBool():
		v, _ := w.AsBool()
		return v
	default:
		return w.String()
	}
}

func (r rowMap) stringOr(key, fallback string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return fallback
}

func (r rowMap) intOr(key string, fallback int) int {
	if v, ok := r[key].(int64); ok {
		return int(v)
	}
	return fallback
}
