package backup

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MinSecretLength is the shortest signing secret accepted
const MinSecretLength = 16

// SealOptions carries the descriptive metadata fields of a new document
type SealOptions struct {
	CreatedAt  time.Time
	CreatedBy  string
	Database   string
	AppVersion string
}

// Sealer attaches checksums and an HMAC-SHA256 signature to documents and
// verifies them again later. It cannot be built without a secret.
type Sealer struct {
	secret []byte
}

// NewSealer returns a sealer keyed by secret
func NewSealer(secret []byte) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, NewConfigurationError("signing secret is required to seal or validate backups", nil)
	}
	if len(secret) < MinSecretLength {
		return nil, NewConfigurationError("signing secret is too short", nil).
			WithContext("min_length", MinSecretLength)
	}
	return &Sealer{secret: append([]byte(nil), secret...)}, nil
}

// Seal turns captured tables into an immutable signed document
func (s *Sealer) Seal(tables map[string][]Row, opts SealOptions) (*Document, error) {
	createdAt := opts.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	meta := &Metadata{
		CreatedAt:  createdAt.UTC().Truncate(time.Second),
		CreatedBy:  opts.CreatedBy,
		Database:   opts.Database,
		AppVersion: opts.AppVersion,
		Tables:     make(map[string]TableMeta, len(tables)),
	}

	sealed := make(map[string][]Row, len(tables))
	for name, rows := range tables {
		if rows == nil {
			rows = []Row{}
		}
		sum, err := contentHash(rows)
		if err != nil {
			return nil, NewMalformedDocumentError("failed to hash table "+name, err)
		}
		sealed[name] = rows
		meta.Tables[name] = TableMeta{RowCount: len(rows), Checksum: sum}
	}

	total, err := contentHash(sealed)
	if err != nil {
		return nil, NewMalformedDocumentError("failed to hash tables", err)
	}
	meta.TotalChecksum = total

	doc := &Document{
		Format:   DocumentFormat,
		Version:  DocumentVersion,
		Metadata: meta,
		Tables:   sealed,
	}

	signature, err := s.sign(doc)
	if err != nil {
		return nil, err
	}
	meta.Signature = signature
	return doc, nil
}

// VerifySignature recomputes the MAC the same way Seal produced it
func (s *Sealer) VerifySignature(doc *Document) (bool, error) {
	if doc == nil || doc.Metadata == nil || doc.Metadata.Signature == "" {
		return false, nil
	}

	got, err := hex.DecodeString(doc.Metadata.Signature)
	if err != nil {
		return false, nil
	}

	payload, err := signingPayload(doc)
	if err != nil {
		return false, err
	}
	return hmac.Equal(got, s.mac(payload)), nil
}

func (s *Sealer) sign(doc *Document) (string, error) {
	payload, err := signingPayload(doc)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(s.mac(payload)), nil
}

func (s *Sealer) mac(payload []byte) []byte {
	h := hmac.New(sha256.New, s.secret)
	h.Write(payload)
	return h.Sum(nil)
}

// signingPayload is the canonical encoding of doc with the signature field
// absent. Signing and verification must both go through it.
func signingPayload(doc *Document) ([]byte, error) {
	unsigned := *doc
	if doc.Metadata != nil {
		meta := *doc.Metadata
		meta.Signature = ""
		unsigned.Metadata = &meta
	}

	payload, err := canonicalJSON(&unsigned)
	if err != nil {
		return nil, NewMalformedDocumentError("failed to serialize document for signing", err)
	}
	return payload, nil
}
