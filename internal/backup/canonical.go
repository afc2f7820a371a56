package backup

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// canonicalJSON encodes v with every object's keys in sorted order. Numbers
// keep their original textual form, so a value hashes the same whether it
// came from the driver or from a decoded container.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var generic interface{}
	if err := decoder.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// contentHash is the hex SHA-256 of the canonical encoding of v
func contentHash(v interface{}) (string, error) {
	data, err := canonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// decodeDocument parses a serialized document, keeping numbers as json.Number
func decodeDocument(data []byte) (*Document, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var doc Document
	if err := decoder.Decode(&doc); err != nil {
		return nil, NewMalformedDocumentError("document is not valid JSON", err)
	}
	if err := checkShape(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func checkShape(doc *Document) error {
	if doc == nil {
		return NewMalformedDocumentError("document is empty", nil)
	}
	if doc.Format != DocumentFormat {
		return NewMalformedDocumentError("unrecognized document format", nil).WithContext("format", doc.Format)
	}
	if doc.Metadata == nil {
		return NewMalformedDocumentError("document has no metadata", nil)
	}
	if doc.Tables == nil {
		return NewMalformedDocumentError("document has no tables", nil)
	}
	return nil
}
