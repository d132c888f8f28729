package cassandra

// DataPointValueCodec encodes and decodes the opaque value payload stored
// alongside a data point. The engine treats the payload as bytes tagged
// by DataType; value encoding itself is pluggable, but the engine still
// needs a concrete default to exercise the column-name type flag
// end-to-end.
type DataPointValueCodec interface {
	// Encode produces the stored payload and the legacy type flag for the
	// column-name codec; non-legacy codecs always return 0.
	Encode(dp DataPoint) (payload []byte, typeFlag uint32, err error)
	// Decode reconstructs a value from a stored payload given the legacy
	// is-long hint recovered from the column name.
	Decode(dataType string, payload []byte, isLong bool) ([]byte, error)
}

// legacyLongType and legacyDoubleType are the two DataType values the
// LegacyCodec recognizes; any other DataType passes its payload through
// unchanged with typeFlag 0, since the row key (not the column) carries
// the type for non-legacy families.
const (
	legacyLongType   = "kairos_legacy_long"
	legacyDoubleType = "kairos_legacy_double"
)

// LegacyCodec stores the long/double wire format as an 8-byte big-endian
// value (an int64, or the IEEE-754 bits of a float64) the caller already
// produced; the codec's only job is to pick the type flag the
// column-name codec records.
type LegacyCodec struct{}

func (LegacyCodec) Encode(dp DataPoint) ([]byte, uint32, error) {
	switch dp.DataType {
	case legacyLongType, legacyDoubleType:
		if len(dp.Value) != 8 {
			return nil, 0, &MalformedKeyError{Msg: "legacy data point value must be 8 bytes"}
		}
	}

	if dp.DataType == legacyDoubleType {
		return dp.Value, 1, nil
	}
	return dp.Value, 0, nil
}

func (LegacyCodec) Decode(dataType string, payload []byte, isLong bool) ([]byte, error) {
	switch dataType {
	case legacyLongType, legacyDoubleType:
		if len(payload) != 8 {
			return nil, &MalformedKeyError{Msg: "legacy data point payload must be 8 bytes"}
		}
	}
	return payload, nil
}
