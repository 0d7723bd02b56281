package sparkplug

import "fmt"

// DataType is a Sparkplug B metric data type identifier.
// Values follow the Eclipse Tahu DataType enum.
type DataType uint32

// Scalar data types used by this client.
const (
	DataTypeUnknown  DataType = 0
	DataTypeInt8     DataType = 1
	DataTypeInt16    DataType = 2
	DataTypeInt32    DataType = 3
	DataTypeInt64    DataType = 4
	DataTypeUInt8    DataType = 5
	DataTypeUInt16   DataType = 6
	DataTypeUInt32   DataType = 7
	DataTypeUInt64   DataType = 8
	DataTypeFloat    DataType = 9
	DataTypeDouble   DataType = 10
	DataTypeBoolean  DataType = 11
	DataTypeString   DataType = 12
	DataTypeDateTime DataType = 13
	DataTypeText     DataType = 14
)

// ParseDataType maps a configuration type name to a DataType.
//
// Recognised names: int, long, float, double, boolean, string, datetime.
func ParseDataType(name string) (DataType, error) {
	switch name {
	case "int", "int32":
		return DataTypeInt32, nil
	case "long", "int64":
		return DataTypeInt64, nil
	case "float":
		return DataTypeFloat, nil
	case "double":
		return DataTypeDouble, nil
	case "boolean", "bool":
		return DataTypeBoolean, nil
	case "string":
		return DataTypeString, nil
	case "datetime":
		return DataTypeDateTime, nil
	default:
		return DataTypeUnknown, fmt.Errorf("unknown data type %q", name)
	}
}

// IsNumeric reports whether the type carries a numeric value that deadband
// filtering applies to.
func (d DataType) IsNumeric() bool {
	switch d {
	case DataTypeInt8, DataTypeInt16, DataTypeInt32, DataTypeInt64,
		DataTypeUInt8, DataTypeUInt16, DataTypeUInt32, DataTypeUInt64,
		DataTypeFloat, DataTypeDouble:
		return true
	default:
		return false
	}
}

// IsBoolean reports whether the type is boolean. Boolean tags publish on
// any change of value; the deadband magnitude is ignored.
func (d DataType) IsBoolean() bool {
	return d == DataTypeBoolean
}

// String returns the canonical lowercase name of the data type.
func (d DataType) String() string {
	switch d {
	case DataTypeInt8:
		return "int8"
	case DataTypeInt16:
		return "int16"
	case DataTypeInt32:
		return "int32"
	case DataTypeInt64:
		return "int64"
	case DataTypeUInt8:
		return "uint8"
	case DataTypeUInt16:
		return "uint16"
	case DataTypeUInt32:
		return "uint32"
	case DataTypeUInt64:
		return "uint64"
	case DataTypeFloat:
		return "float"
	case DataTypeDouble:
		return "double"
	case DataTypeBoolean:
		return "boolean"
	case DataTypeString:
		return "string"
	case DataTypeDateTime:
		return "datetime"
	case DataTypeText:
		return "text"
	default:
		return "unknown"
	}
}
