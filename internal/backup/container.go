package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	backupNamePrefix = "backup_"
	// TimestampLayout is the sortable timestamp embedded in backup names
	TimestampLayout = "2006-01-02_15-04-05"

	sealedExtension    = ".json"
	sqlExtension       = ".sql"
	encryptedExtension = ".enc"
)

// ContainerName is the parsed form of a backup file name
type ContainerName struct {
	Name        string
	Format      BackupFormat
	Compression CompressionType
	Encrypted   bool
	CreatedAt   time.Time
}

// ContainerCodec converts documents and SQL scripts to and from stored bytes
type ContainerCodec struct {
	compression *CompressionManager
	algorithm   CompressionType
	level       int
	encryptor   *Encryptor
}

// NewContainerCodec creates a codec writing with algorithm at level.
// encryptor may be nil.
func NewContainerCodec(algorithm CompressionType, level int, encryptor *Encryptor) (*ContainerCodec, error) {
	cm := NewCompressionManager()
	if _, err := cm.Get(algorithm); err != nil {
		return nil, err
	}
	return &ContainerCodec{compression: cm, algorithm: algorithm, level: level, encryptor: encryptor}, nil
}

// Name builds the file name for a new backup. seq disambiguates backups
// created within the same second and is omitted when zero.
func (c *ContainerCodec) Name(format BackupFormat, createdAt time.Time, seq int) string {
	var b strings.Builder
	b.WriteString(backupNamePrefix)
	b.WriteString(createdAt.UTC().Format(TimestampLayout))
	if seq > 0 {
		fmt.Fprintf(&b, "_%d", seq)
	}

	if format == BackupFormatSQL {
		b.WriteString(sqlExtension)
	} else {
		compressor, _ := c.compression.Get(c.algorithm)
		b.WriteString(sealedExtension)
		b.WriteString(compressor.Extension())
	}

	if c.encryptor != nil {
		b.WriteString(encryptedExtension)
	}
	return b.String()
}

// ParseName recognizes backup file names. Files that are not backups return false.
func (c *ContainerCodec) ParseName(name string) (ContainerName, bool) {
	parsed := ContainerName{Name: name}

	rest, ok := strings.CutPrefix(name, backupNamePrefix)
	if !ok || len(rest) < len(TimestampLayout) {
		return parsed, false
	}

	createdAt, err := time.ParseInLocation(TimestampLayout, rest[:len(TimestampLayout)], time.UTC)
	if err != nil {
		return parsed, false
	}
	parsed.CreatedAt = createdAt
	rest = rest[len(TimestampLayout):]

	if seqPart, after, found := strings.Cut(rest, "."); found && strings.HasPrefix(seqPart, "_") {
		if _, err := strconv.Atoi(seqPart[1:]); err != nil {
			return parsed, false
		}
		rest = "." + after
	}

	if trimmed, ok := strings.CutSuffix(rest, encryptedExtension); ok {
		parsed.Encrypted = true
		rest = trimmed
	}

	if rest == sqlExtension {
		parsed.Format = BackupFormatSQL
		return parsed, true
	}

	compExt, ok := strings.CutPrefix(rest, sealedExtension)
	if !ok {
		return parsed, false
	}
	compressor, ok := c.compression.ByExtension(compExt)
	if !ok {
		return parsed, false
	}
	parsed.Format = BackupFormatSealed
	parsed.Compression = compressor.Algorithm()
	return parsed, true
}

// Encode serializes and compresses doc, then encrypts it when configured
func (c *ContainerCodec) Encode(doc *Document) ([]byte, *CompressionStats, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, nil, NewMalformedDocumentError("failed to serialize document", err)
	}

	compressed, stats, err := c.compression.Compress(raw, c.algorithm, c.level)
	if err != nil {
		return nil, nil, err
	}

	out, err := c.seal(compressed)
	if err != nil {
		return nil, nil, err
	}
	stats.CompressedSize = int64(len(out))
	stats.CompressionRatio = CalculateCompressionRatio(stats.OriginalSize, stats.CompressedSize)
	return out, stats, nil
}

// Decode fully loads a sealed document
func (c *ContainerCodec) Decode(name string, data []byte) (*Document, error) {
	reader, err := c.openSealed(name, data)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewInvalidEncodingError("failed to decompress container", err)
	}
	return decodeDocument(raw)
}

// DecodeMetadata reads only as far as the metadata object. Row payloads are
// never decoded; for unencrypted containers they are never decompressed either.
func (c *ContainerCodec) DecodeMetadata(name string, r io.Reader) (*Metadata, error) {
	data := r
	parsed, ok := c.ParseName(name)
	if !ok || parsed.Format != BackupFormatSealed {
		return nil, NewInvalidEncodingError(fmt.Sprintf("%s is not a sealed backup", name), nil)
	}

	if parsed.Encrypted {
		all, err := io.ReadAll(r)
		if err != nil {
			return nil, NewStorageError("failed to read container", err)
		}
		plain, err := c.open(all)
		if err != nil {
			return nil, err
		}
		data = bytes.NewReader(plain)
	}

	compressor, err := c.compression.Get(parsed.Compression)
	if err != nil {
		return nil, err
	}
	reader, err := compressor.NewReader(data)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return streamMetadata(reader)
}

func streamMetadata(r io.Reader) (*Metadata, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	if tok, err := decoder.Token(); err != nil || tok != json.Delim('{') {
		return nil, NewMalformedDocumentError("document is not a JSON object", err)
	}

	format := ""
	for decoder.More() {
		tok, err := decoder.Token()
		if err != nil {
			return nil, NewMalformedDocumentError("failed to read document key", err)
		}
		key, _ := tok.(string)

		switch key {
		case "format":
			if err := decoder.Decode(&format); err != nil {
				return nil, NewMalformedDocumentError("invalid format field", err)
			}
		case "metadata":
			if format != "" && format != DocumentFormat {
				return nil, NewMalformedDocumentError("unrecognized document format", nil).WithContext("format", format)
			}
			var meta Metadata
			if err := decoder.Decode(&meta); err != nil {
				return nil, NewMalformedDocumentError("invalid metadata", err)
			}
			return &meta, nil
		default:
			var skip json.RawMessage
			if err := decoder.Decode(&skip); err != nil {
				return nil, NewMalformedDocumentError("failed to skip field "+key, err)
			}
		}
	}
	return nil, NewMalformedDocumentError("document has no metadata", nil)
}

// EncodeSQL prepares a legacy SQL script for storage
func (c *ContainerCodec) EncodeSQL(script string) ([]byte, error) {
	return c.seal([]byte(script))
}

// DecodeSQL returns the script stored under name. It must be valid UTF-8.
func (c *ContainerCodec) DecodeSQL(name string, data []byte) (string, error) {
	parsed, ok := c.ParseName(name)
	if !ok || parsed.Format != BackupFormatSQL {
		return "", NewInvalidEncodingError(fmt.Sprintf("%s is not a SQL backup", name), nil)
	}

	if parsed.Encrypted {
		plain, err := c.open(data)
		if err != nil {
			return "", err
		}
		data = plain
	}

	if !utf8.Valid(data) {
		return "", NewInvalidEncodingError("SQL backup is not valid UTF-8", nil)
	}
	return string(data), nil
}

func (c *ContainerCodec) openSealed(name string, data []byte) (io.ReadCloser, error) {
	parsed, ok := c.ParseName(name)
	if !ok || parsed.Format != BackupFormatSealed {
		return nil, NewInvalidEncodingError(fmt.Sprintf("%s is not a sealed backup", name), nil)
	}

	if parsed.Encrypted {
		plain, err := c.open(data)
		if err != nil {
			return nil, err
		}
		data = plain
	}

	compressor, err := c.compression.Get(parsed.Compression)
	if err != nil {
		return nil, err
	}
	return compressor.NewReader(bytes.NewReader(data))
}

func (c *ContainerCodec) seal(data []byte) ([]byte, error) {
	if c.encryptor == nil {
		return data, nil
	}
	return c.encryptor.Encrypt(data)
}

func (c *ContainerCodec) open(data []byte) ([]byte, error) {
	if c.encryptor == nil {
		return nil, NewConfigurationError("backup is encrypted but no encryption passphrase is configured", nil)
	}
	return c.encryptor.Decrypt(data)
}
