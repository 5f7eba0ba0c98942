package importing

import (
	"sort"
	"strings"
)

// TableType identifies one importable target table.
type TableType string

const (
	TableItems         TableType = "items"
	TableStores        TableType = "stores"
	TableStaff         TableType = "staff"
	TablePricelists    TableType = "pricelists"
	TableTransferItems TableType = "transfer_items"
)

// ParseTableType accepts the canonical name plus a few spellings the UI and
// older clients send ("transfer-items", "Pricelist").
func ParseTableType(raw string) (TableType, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch normalized {
	case "items", "item", "reference", "catalog":
		return TableItems, nil
	case "stores", "store":
		return TableStores, nil
	case "staff", "staffs", "employees":
		return TableStaff, nil
	case "pricelists", "pricelist", "prices":
		return TablePricelists, nil
	case "transfer_items", "transfer_item", "transfer_order_items":
		return TableTransferItems, nil
	}
	return "", ErrUnknownTableType
}

// TableTypes returns every supported table type in a stable order.
func TableTypes() []TableType {
	out := make([]TableType, 0, len(schemas))
	for tt := range schemas {
		out = append(out, tt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t TableType) String() string { return string(t) }
