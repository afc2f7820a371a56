package backup

import (
	"encoding/base64"
	"strings"
	"time"
)

const (
	storeDateLayout     = "2006-01-02"
	storeDateTimeLayout = "2006-01-02 15:04:05.999999"
)

func isDateType(dataType string) bool {
	switch strings.ToUpper(dataType) {
	case "DATE", "DATETIME", "TIMESTAMP":
		return true
	}
	return false
}

// toStoreDate converts a captured date or datetime string into the literal
// MySQL expects for a column of dataType.
func toStoreDate(value string, dataType string) string {
	dateOnly := strings.EqualFold(dataType, "DATE")

	for _, layout := range []string{time.RFC3339Nano, storeDateLayout} {
		if t, err := time.Parse(layout, value); err == nil {
			if dateOnly {
				return t.UTC().Format(storeDateLayout)
			}
			return t.UTC().Format(storeDateTimeLayout)
		}
	}

	converted := strings.TrimSuffix(strings.Replace(value, "T", " ", 1), "Z")
	if dateOnly && len(converted) > len(storeDateLayout) {
		converted = converted[:len(storeDateLayout)]
	}
	return converted
}

// toStoreValue converts a captured value back into a driver argument
func toStoreValue(v interface{}, dataType string) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	switch {
	case isBinaryType(dataType):
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return decoded, nil
	case isDateType(dataType):
		return toStoreDate(s, dataType), nil
	}
	return s, nil
}
