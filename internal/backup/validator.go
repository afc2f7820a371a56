package backup

import (
	"sort"
	"time"

	"mysql-data-vault/internal/catalog"
)

// Validator recomputes checksums and the signature of a loaded document
type Validator struct {
	sealer  *Sealer
	catalog *catalog.Catalog
}

// NewValidator creates a validator. The sealer carries the signing secret.
func NewValidator(sealer *Sealer, cat *catalog.Catalog) *Validator {
	return &Validator{sealer: sealer, catalog: cat}
}

// Validate returns a report for doc. Only a structurally malformed document
// produces an error; integrity failures are recorded in the report.
func (v *Validator) Validate(doc *Document) (*ValidationReport, error) {
	if err := checkShape(doc); err != nil {
		return nil, err
	}

	report := &ValidationReport{
		Valid:     true,
		Tables:    make(map[string]TableReport, len(doc.Tables)),
		Warnings:  []string{},
		Errors:    []string{},
		CheckedAt: time.Now().UTC(),
	}

	if doc.Version != DocumentVersion {
		report.addWarning("document version %s differs from %s", doc.Version, DocumentVersion)
	}

	names := make([]string, 0, len(doc.Tables))
	for name := range doc.Tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		rows := doc.Tables[name]
		tableReport := TableReport{RowCount: len(rows)}
		report.TotalRecords += len(rows)

		if v.catalog.IsExcluded(name) {
			report.addError("excluded table %s is present in the document", name)
		} else if !v.catalog.Contains(name) {
			report.addWarning("table %s is not in the catalog and will not be restored", name)
		}

		meta, ok := doc.Metadata.Tables[name]
		switch {
		case !ok:
			report.addError("no checksum recorded for table %s", name)
		default:
			sum, err := contentHash(rows)
			if err != nil {
				return nil, NewMalformedDocumentError("failed to hash table "+name, err)
			}
			tableReport.ChecksumValid = sum == meta.Checksum
			if !tableReport.ChecksumValid {
				report.addError("checksum mismatch for table %s", name)
			}
			if meta.RowCount != len(rows) {
				report.addError("row count mismatch for table %s: metadata %d, payload %d", name, meta.RowCount, len(rows))
			}
		}
		report.Tables[name] = tableReport
	}

	for name := range doc.Metadata.Tables {
		if _, ok := doc.Tables[name]; !ok {
			report.addError("metadata lists table %s which is absent from the payload", name)
		}
	}

	total, err := contentHash(doc.Tables)
	if err != nil {
		return nil, NewMalformedDocumentError("failed to hash tables", err)
	}
	report.TotalChecksumValid = total == doc.Metadata.TotalChecksum
	if !report.TotalChecksumValid {
		report.addError("total checksum mismatch")
	}

	if doc.Metadata.Signature == "" {
		report.addError("document is not signed")
	} else {
		ok, err := v.sealer.VerifySignature(doc)
		if err != nil {
			return nil, err
		}
		report.SignatureValid = ok
		if !ok {
			report.addError("signature is invalid")
		}
	}

	for _, name := range v.catalog.RestoreOrder() {
		if _, ok := doc.Tables[name]; !ok {
			report.addWarning("catalog table %s is missing from the document", name)
		}
	}

	return report, nil
}
