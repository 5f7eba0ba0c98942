package importing

import "strings"

// RuleKind enumerates the declarative validation checks the loader knows how
// to express as a set query against a staging table.
type RuleKind int

const (
	RuleRequired RuleKind = iota + 1
	RuleMaxLength
	RulePositiveNumber
	RulePositiveInteger
	RuleNumberRange
	RuleEmail
	RuleParentRequired
)

type Rule struct {
	Kind    RuleKind
	Field   Field
	Max     int
	Min     float64
	Upper   float64
	Message string
}

// Schema describes everything the pipeline needs to know about one table
// type: how headers map to fields, which rows are structurally usable, the
// validation rules and the upsert key.
type Schema struct {
	Type         TableType
	TargetTable  string
	StagingTable string
	Fields       []Field
	// Identifying lists fields of which at least one must be present for the
	// parser to consider a row usable.
	Identifying []Field
	Key         []Field
	Update      []Field
	Rules       []Rule
	// ParentField is filled from job additional data for every staged row.
	ParentField Field
	aliases     map[string]Field
}

// LookupSchema returns the schema for a table type.
func LookupSchema(tt TableType) (*Schema, error) {
	s, ok := schemas[tt]
	if !ok {
		return nil, ErrUnknownTableType
	}
	return s, nil
}

// Resolve maps a raw header cell onto a canonical field for this table.
func (s *Schema) Resolve(header string) (Field, bool) {
	f, ok := s.aliases[NormalizeHeader(header)]
	return f, ok
}

// Aliases returns the normalized aliases accepted for field f.
func (s *Schema) Aliases(f Field) []string {
	var out []string
	for alias, target := range s.aliases {
		if target == f {
			out = append(out, alias)
		}
	}
	return out
}

// ExpectedColumns lists the canonical columns, used in header errors and the
// table-type catalog.
func (s *Schema) ExpectedColumns() []string {
	out := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, f.Column())
	}
	return out
}

func (s *Schema) HasField(f Field) bool {
	for _, candidate := range s.Fields {
		if candidate == f {
			return true
		}
	}
	return false
}

// IdentifyingLabel renders the identifying fields for a "missing" message:
// "item code" or "item code or serial number".
func (s *Schema) IdentifyingLabel() string {
	labels := make([]string, 0, len(s.Identifying))
	for _, f := range s.Identifying {
		labels = append(labels, f.Label())
	}
	return strings.Join(labels, " or ")
}

// NormalizeHeader folds a header cell for alias comparison: lower case,
// separators to spaces, collapsed whitespace, trailing "*" or ":" removed.
func NormalizeHeader(raw string) string {
	s := strings.TrimPrefix(raw, "\uFEFF")
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, "*: ")
	s = strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

var commonAliases = map[Field][]string{
	FieldItemCode:       {"item code", "kode item", "kode barang", "kode produk", "product code", "sku", "plu", "artikel", "article", "itemcode"},
	FieldItemName:       {"item name", "nama item", "nama barang", "nama produk", "product name", "description", "deskripsi"},
	FieldSerialNumber:   {"sn", "s/n", "serial", "serial number", "serial no", "nomor seri", "no seri", "imei"},
	FieldCategory:       {"category", "kategori"},
	FieldBrand:          {"brand", "merk", "merek"},
	FieldUnit:           {"unit", "satuan", "uom"},
	FieldBarcode:        {"barcode", "ean", "upc"},
	FieldStoreCode:      {"store code", "kode toko", "kode store", "site code", "kode cabang", "branch code"},
	FieldStoreName:      {"store name", "nama toko", "nama store", "site name", "nama cabang", "branch name"},
	FieldRegion:         {"region", "wilayah", "area"},
	FieldAddress:        {"address", "alamat"},
	FieldPhone:          {"phone", "phone number", "telepon", "telp", "no telp", "no hp"},
	FieldNIK:            {"nik", "employee id", "employee number", "staff id", "id karyawan", "nomor induk karyawan"},
	FieldStaffName:      {"staff name", "employee name", "nama karyawan", "nama staff", "nama pegawai"},
	FieldPosition:       {"position", "jabatan", "role"},
	FieldEmail:          {"email", "e mail", "surel"},
	FieldSellingPrice:   {"selling price", "harga jual", "price", "harga", "srp"},
	FieldPurchasePrice:  {"purchase price", "harga beli", "cost", "hpp"},
	FieldDiscount:       {"discount", "diskon", "disc"},
	FieldQuantity:       {"qty", "quantity", "jumlah", "kuantitas", "jml"},
	FieldNotes:          {"notes", "keterangan", "catatan", "remark", "remarks"},
	FieldTransferNumber: {"transfer number", "no transfer", "nomor transfer", "to number", "transfer order"},
}

func buildSchema(s *Schema, extra map[string]Field) *Schema {
	s.aliases = make(map[string]Field)
	for _, f := range s.Fields {
		s.aliases[NormalizeHeader(f.Column())] = f
		for _, alias := range commonAliases[f] {
			s.aliases[NormalizeHeader(alias)] = f
		}
	}
	for alias, f := range extra {
		s.aliases[NormalizeHeader(alias)] = f
	}
	if s.StagingTable == "" {
		s.StagingTable = "stg_" + s.TargetTable
	}
	return s
}

var schemas = map[TableType]*Schema{
	TableItems: buildSchema(&Schema{
		Type:        TableItems,
		TargetTable: "items",
		Fields:      []Field{FieldItemCode, FieldItemName, FieldCategory, FieldBrand, FieldUnit, FieldBarcode},
		Identifying: []Field{FieldItemCode},
		Key:         []Field{FieldItemCode},
		Update:      []Field{FieldItemName, FieldCategory, FieldBrand, FieldUnit, FieldBarcode},
		Rules: []Rule{
			{Kind: RuleRequired, Field: FieldItemCode, Message: "item code is required"},
			{Kind: RuleMaxLength, Field: FieldItemCode, Max: 50, Message: "item code must be at most 50 characters"},
			{Kind: RuleMaxLength, Field: FieldItemName, Max: 255, Message: "item name must be at most 255 characters"},
		},
	}, map[string]Field{"code": FieldItemCode, "kode": FieldItemCode, "name": FieldItemName, "nama": FieldItemName}),

	TableStores: buildSchema(&Schema{
		Type:        TableStores,
		TargetTable: "stores",
		Fields:      []Field{FieldStoreCode, FieldStoreName, FieldRegion, FieldAddress, FieldPhone},
		Identifying: []Field{FieldStoreCode},
		Key:         []Field{FieldStoreCode},
		Update:      []Field{FieldStoreName, FieldRegion, FieldAddress, FieldPhone},
		Rules: []Rule{
			{Kind: RuleRequired, Field: FieldStoreCode, Message: "store code is required"},
			{Kind: RuleRequired, Field: FieldStoreName, Message: "store name is required"},
			{Kind: RuleMaxLength, Field: FieldStoreCode, Max: 20, Message: "store code must be at most 20 characters"},
		},
	}, map[string]Field{"code": FieldStoreCode, "kode": FieldStoreCode, "name": FieldStoreName, "nama": FieldStoreName}),

	TableStaff: buildSchema(&Schema{
		Type:        TableStaff,
		TargetTable: "staff",
		Fields:      []Field{FieldNIK, FieldStaffName, FieldPosition, FieldStoreCode, FieldEmail, FieldPhone},
		Identifying: []Field{FieldNIK},
		Key:         []Field{FieldNIK},
		Update:      []Field{FieldStaffName, FieldPosition, FieldStoreCode, FieldEmail, FieldPhone},
		Rules: []Rule{
			{Kind: RuleRequired, Field: FieldNIK, Message: "NIK is required"},
			{Kind: RuleRequired, Field: FieldStaffName, Message: "staff name is required"},
			{Kind: RuleMaxLength, Field: FieldNIK, Max: 30, Message: "NIK must be at most 30 characters"},
			{Kind: RuleEmail, Field: FieldEmail, Message: "email is not a valid address"},
		},
	}, map[string]Field{"name": FieldStaffName, "nama": FieldStaffName}),

	TablePricelists: buildSchema(&Schema{
		Type:        TablePricelists,
		TargetTable: "pricelists",
		Fields:      []Field{FieldItemCode, FieldStoreCode, FieldSellingPrice, FieldPurchasePrice, FieldDiscount},
		Identifying: []Field{FieldItemCode},
		Key:         []Field{FieldItemCode, FieldStoreCode},
		Update:      []Field{FieldSellingPrice, FieldPurchasePrice, FieldDiscount},
		Rules: []Rule{
			{Kind: RuleRequired, Field: FieldItemCode, Message: "item code is required"},
			{Kind: RulePositiveNumber, Field: FieldSellingPrice, Message: "selling price must be greater than 0"},
			{Kind: RuleNumberRange, Field: FieldDiscount, Min: 0, Upper: 100, Message: "discount must be between 0 and 100"},
		},
	}, map[string]Field{"kode": FieldItemCode}),

	TableTransferItems: buildSchema(&Schema{
		Type:        TableTransferItems,
		TargetTable: "transfer_items",
		Fields:      []Field{FieldTransferNumber, FieldItemCode, FieldItemName, FieldSerialNumber, FieldQuantity, FieldNotes},
		Identifying: []Field{FieldItemCode, FieldSerialNumber},
		Key:         []Field{FieldTransferNumber, FieldItemCode, FieldSerialNumber},
		Update:      []Field{FieldItemName, FieldQuantity, FieldNotes},
		ParentField: FieldTransferNumber,
		Rules: []Rule{
			{Kind: RuleParentRequired, Field: FieldTransferNumber, Message: "transfer order number is not resolved"},
			{Kind: RulePositiveInteger, Field: FieldQuantity, Message: "quantity must be a positive integer"},
		},
	}, map[string]Field{"kode": FieldItemCode, "nama": FieldItemName}),
}
