// Package codec handles document serialization for storage backends. Values
// are JSON encoded then snappy compressed.
package codec

import (
	"encoding/json"

	"github.com/golang/snappy"
)

func EncodeSnappy(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, data), nil
}

func DecodeSnappy(data []byte, v any) error {
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return err
	}
	return json.Unmarshal(decoded, v)
}
