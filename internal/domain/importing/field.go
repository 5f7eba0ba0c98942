package importing

// Field is a canonical column that imported rows are mapped onto. Every header
// alias resolves to exactly one Field before a row leaves the parser.
type Field int

const (
	FieldItemCode Field = iota + 1
	FieldItemName
	FieldSerialNumber
	FieldCategory
	FieldBrand
	FieldUnit
	FieldBarcode
	FieldStoreCode
	FieldStoreName
	FieldRegion
	FieldAddress
	FieldPhone
	FieldNIK
	FieldStaffName
	FieldPosition
	FieldEmail
	FieldSellingPrice
	FieldPurchasePrice
	FieldDiscount
	FieldQuantity
	FieldNotes
	FieldTransferNumber
)

// FieldKind controls how the parser normalizes a value and how the loader
// casts it when writing the target table.
type FieldKind int

const (
	KindText FieldKind = iota
	KindDecimal
	KindInteger
)

type fieldInfo struct {
	column string
	label  string
	kind   FieldKind
}

var fieldInfos = map[Field]fieldInfo{
	FieldItemCode:       {column: "item_code", label: "item code"},
	FieldItemName:       {column: "item_name", label: "item name"},
	FieldSerialNumber:   {column: "sn", label: "serial number"},
	FieldCategory:       {column: "category", label: "category"},
	FieldBrand:          {column: "brand", label: "brand"},
	FieldUnit:           {column: "unit", label: "unit"},
	FieldBarcode:        {column: "barcode", label: "barcode"},
	FieldStoreCode:      {column: "store_code", label: "store code"},
	FieldStoreName:      {column: "store_name", label: "store name"},
	FieldRegion:         {column: "region", label: "region"},
	FieldAddress:        {column: "address", label: "address"},
	FieldPhone:          {column: "phone", label: "phone"},
	FieldNIK:            {column: "nik", label: "NIK"},
	FieldStaffName:      {column: "staff_name", label: "staff name"},
	FieldPosition:       {column: "position", label: "position"},
	FieldEmail:          {column: "email", label: "email"},
	FieldSellingPrice:   {column: "selling_price", label: "selling price", kind: KindDecimal},
	FieldPurchasePrice:  {column: "purchase_price", label: "purchase price", kind: KindDecimal},
	FieldDiscount:       {column: "discount", label: "discount", kind: KindDecimal},
	FieldQuantity:       {column: "qty", label: "quantity", kind: KindInteger},
	FieldNotes:          {column: "notes", label: "notes"},
	FieldTransferNumber: {column: "transfer_number", label: "transfer order number"},
}

// Column is the snake_case column name used in staging and target tables.
func (f Field) Column() string { return fieldInfos[f].column }

// Label is the human readable name used in validation messages.
func (f Field) Label() string { return fieldInfos[f].label }

func (f Field) Kind() FieldKind { return fieldInfos[f].kind }

func (f Field) String() string {
	if info, ok := fieldInfos[f]; ok {
		return info.column
	}
	return "unknown"
}
