package cook

import "fmt"

// Storage is the raw storage class of an upstream attribute.
type Storage int

const (
	StorageInt8 Storage = iota
	StorageUint8
	StorageInt16
	StorageInt
	StorageInt64
	StorageFloat
	StorageFloat64
	StorageString
	StorageDictionary
	StorageBlob
)

var storageNames = [...]string{
	StorageInt8:       "int8",
	StorageUint8:      "uint8",
	StorageInt16:      "int16",
	StorageInt:        "int",
	StorageInt64:      "int64",
	StorageFloat:      "float",
	StorageFloat64:    "float64",
	StorageString:     "string",
	StorageDictionary: "dictionary",
	StorageBlob:       "blob",
}

func (s Storage) String() string {
	if s >= 0 && int(s) < len(storageNames) {
		return storageNames[s]
	}
	return fmt.Sprintf("storage(%d)", int(s))
}

// ParseStorage parses a storage name.
func ParseStorage(name string) (Storage, error) {
	for i, n := range storageNames {
		if n == name {
			return Storage(i), nil
		}
	}
	return 0, fmt.Errorf("cook: unknown storage %q", name)
}

// IsInteger reports whether values are held in Attribute.Ints.
func (s Storage) IsInteger() bool {
	return s <= StorageInt64
}

// IsFloat reports whether values are held in Attribute.Floats.
func (s Storage) IsFloat() bool {
	return s == StorageFloat || s == StorageFloat64
}

// TypeInfo is the semantic hint attached to an attribute.
type TypeInfo int

const (
	TypeInfoNone TypeInfo = iota
	TypeInfoPoint
	TypeInfoVector
	TypeInfoNormal
	TypeInfoColor
	TypeInfoQuaternion
	TypeInfoMatrix
	TypeInfoAssetPath
)

var typeInfoNames = [...]string{
	TypeInfoNone:       "none",
	TypeInfoPoint:      "point",
	TypeInfoVector:     "vector",
	TypeInfoNormal:     "normal",
	TypeInfoColor:      "color",
	TypeInfoQuaternion: "quaternion",
	TypeInfoMatrix:     "matrix",
	TypeInfoAssetPath:  "assetpath",
}

func (t TypeInfo) String() string {
	if t >= 0 && int(t) < len(typeInfoNames) {
		return typeInfoNames[t]
	}
	return fmt.Sprintf("typeinfo(%d)", int(t))
}

// ParseTypeInfo parses a type info name. The empty string is TypeInfoNone.
func ParseTypeInfo(name string) (TypeInfo, error) {
	if name == "" {
		return TypeInfoNone, nil
	}
	for i, n := range typeInfoNames {
		if n == name {
			return TypeInfo(i), nil
		}
	}
	return 0, fmt.Errorf("cook: unknown type info %q", name)
}

// Owner is the element class an attribute is attached to.
type Owner int

const (
	OwnerVertex Owner = iota
	OwnerPoint
	OwnerPrim
	OwnerDetail
)

// Owners lists every owner in read order.
var Owners = []Owner{OwnerVertex, OwnerPoint, OwnerPrim, OwnerDetail}

var ownerNames = [...]string{
	OwnerVertex: "vertex",
	OwnerPoint:  "point",
	OwnerPrim:   "prim",
	OwnerDetail: "detail",
}

func (o Owner) String() string {
	if o >= 0 && int(o) < len(ownerNames) {
		return ownerNames[o]
	}
	return fmt.Sprintf("owner(%d)", int(o))
}

// ParseOwner parses an owner name. "primitive" is accepted for OwnerPrim.
func ParseOwner(name string) (Owner, error) {
	if name == "primitive" {
		return OwnerPrim, nil
	}
	for i, n := range ownerNames {
		if n == name {
			return Owner(i), nil
		}
	}
	return 0, fmt.Errorf("cook: unknown owner %q", name)
}

// AttributeDescriptor describes an attribute's shape. It is comparable and
// used as a cache key, so it carries no per-cook data such as element counts.
type AttributeDescriptor struct {
	Name      string
	Owner     Owner
	Storage   Storage
	TupleSize int
	TypeInfo  TypeInfo
	Array     bool
}

func (d AttributeDescriptor) String() string {
	s := fmt.Sprintf("%s %s %s[%d]", d.Owner, d.Name, d.Storage, d.TupleSize)
	if d.TypeInfo != TypeInfoNone {
		s += " " + d.TypeInfo.String()
	}
	if d.Array {
		s += " array"
	}
	return s
}

// Attribute is one attribute's descriptor plus its flattened values.
// Element i occupies [i*TupleSize, (i+1)*TupleSize) of the backing slice
// chosen by Storage. Elements past the end of the data are missing.
type Attribute struct {
	AttributeDescriptor
	Ints    []int64
	Floats  []float64
	Strings []string
	// StringArrays holds one list per element for string array attributes.
	StringArrays [][]string
	// Raw holds one opaque payload per element for dictionary and blob storage.
	Raw [][]byte
}

// Len returns the number of elements that carry data.
func (a *Attribute) Len() int {
	n := a.TupleSize
	if n <= 0 {
		n = 1
	}
	switch {
	case a.Array:
		return len(a.StringArrays)
	case a.Storage.IsInteger():
		return len(a.Ints) / n
	case a.Storage.IsFloat():
		return len(a.Floats) / n
	case a.Storage == StorageString:
		return len(a.Strings) / n
	}
	return len(a.Raw)
}

// Has reports whether element i carries data.
func (a *Attribute) Has(i int) bool {
	return i >= 0 && i < a.Len()
}

// Float returns component c of element i as a float64, converting integer
// storage. Missing data yields 0 and false.
func (a *Attribute) Float(i, c int) (float64, bool) {
	idx := i*a.TupleSize + c
	switch {
	case !a.Has(i) || c < 0 || c >= a.TupleSize:
		return 0, false
	case a.Storage.IsFloat():
		return a.Floats[idx], true
	case a.Storage.IsInteger():
		return float64(a.Ints[idx]), true
	}
	return 0, false
}

// Tuple returns element i as floats, or nil when missing.
func (a *Attribute) Tuple(i int) []float64 {
	if !a.Has(i) {
		return nil
	}
	out := make([]float64, a.TupleSize)
	for c := range out {
		out[c], _ = a.Float(i, c)
	}
	return out
}

// Int returns component c of element i as an int64.
func (a *Attribute) Int(i, c int) (int64, bool) {
	idx := i*a.TupleSize + c
	switch {
	case !a.Has(i) || c < 0 || c >= a.TupleSize:
		return 0, false
	case a.Storage.IsInteger():
		return a.Ints[idx], true
	case a.Storage.IsFloat():
		return int64(a.Floats[idx]), true
	}
	return 0, false
}

// StringAt returns component c of element i for string storage.
func (a *Attribute) StringAt(i, c int) (string, bool) {
	if a.Storage != StorageString || a.Array || !a.Has(i) || c < 0 || c >= a.TupleSize {
		return "", false
	}
	return a.Strings[i*a.TupleSize+c], true
}

// Clone returns a deep copy with a possibly adjusted descriptor.
func (a *Attribute) Clone() *Attribute {
	c := &Attribute{AttributeDescriptor: a.AttributeDescriptor}
	c.Ints = append([]int64(nil), a.Ints...)
	c.Floats = append([]float64(nil), a.Floats...)
	c.Strings = append([]string(nil), a.Strings...)
	for _, s := range a.StringArrays {
		c.StringArrays = append(c.StringArrays, append([]string(nil), s...))
	}
	for _, r := range a.Raw {
		c.Raw = append(c.Raw, append([]byte(nil), r...))
	}
	return c
}

// FloatAttribute builds a float attribute from flattened values.
func FloatAttribute(name string, owner Owner, tuple int, info TypeInfo, values ...float64) *Attribute {
	return &Attribute{
		AttributeDescriptor: AttributeDescriptor{Name: name, Owner: owner, Storage: StorageFloat, TupleSize: tuple, TypeInfo: info},
		Floats:              values,
	}
}

// IntAttribute builds an integer attribute with the given storage.
func IntAttribute(name string, owner Owner, storage Storage, tuple int, values ...int64) *Attribute {
	return &Attribute{
		AttributeDescriptor: AttributeDescriptor{Name: name, Owner: owner, Storage: storage, TupleSize: tuple},
		Ints:                values,
	}
}

// StringAttribute builds a single-component string attribute.
func StringAttribute(name string, owner Owner, values ...string) *Attribute {
	return &Attribute{
		AttributeDescriptor: AttributeDescriptor{Name: name, Owner: owner, Storage: StorageString, TupleSize: 1},
		Strings:             values,
	}
}

// StringArrayAttribute builds a string array attribute.
func StringArrayAttribute(name string, owner Owner, values ...[]string) *Attribute {
	return &Attribute{
		AttributeDescriptor: AttributeDescriptor{Name: name, Owner: owner, Storage: StorageString, TupleSize: 1, Array: true},
		StringArrays:        values,
	}
}

// BlobAttribute builds an opaque blob attribute.
func BlobAttribute(name string, owner Owner, values ...[]byte) *Attribute {
	return &Attribute{
		AttributeDescriptor: AttributeDescriptor{Name: name, Owner: owner, Storage: StorageBlob, TupleSize: 1},
		Raw:                 values,
	}
}
