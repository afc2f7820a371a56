package backup

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T, algorithm CompressionType, encryptor *Encryptor) *ContainerCodec {
	t.Helper()
	codec, err := NewContainerCodec(algorithm, 0, encryptor)
	require.NoError(t, err)
	return codec
}

func TestContainerCodec_Name(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	gz := newTestCodec(t, CompressionTypeGzip, nil)
	assert.Equal(t, "backup_2026-01-02_03-04-05.json.gz", gz.Name(BackupFormatSealed, at, 0))
	assert.Equal(t, "backup_2026-01-02_03-04-05_2.json.gz", gz.Name(BackupFormatSealed, at, 2))
	assert.Equal(t, "backup_2026-01-02_03-04-05.sql", gz.Name(BackupFormatSQL, at, 0))

	enc, err := NewEncryptor("passphrase")
	require.NoError(t, err)
	zst := newTestCodec(t, CompressionTypeZstd, enc)
	assert.Equal(t, "backup_2026-01-02_03-04-05.json.zst.enc", zst.Name(BackupFormatSealed, at, 0))
	assert.Equal(t, "backup_2026-01-02_03-04-05_1.sql.enc", zst.Name(BackupFormatSQL, at, 1))
}

func TestContainerCodec_ParseName(t *testing.T) {
	codec := newTestCodec(t, CompressionTypeGzip, nil)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name        string
		ok          bool
		format      BackupFormat
		compression CompressionType
		encrypted   bool
	}{
		{"backup_2026-01-02_03-04-05.json.gz", true, BackupFormatSealed, CompressionTypeGzip, false},
		{"backup_2026-01-02_03-04-05_3.json.lz4", true, BackupFormatSealed, CompressionTypeLZ4, false},
		{"backup_2026-01-02_03-04-05.json.zst.enc", true, BackupFormatSealed, CompressionTypeZstd, true},
		{"backup_2026-01-02_03-04-05.sql", true, BackupFormatSQL, "", false},
		{"backup_2026-01-02_03-04-05_1.sql.enc", true, BackupFormatSQL, "", true},
		{"backup_2026-01-02_03-04-05.json", false, "", "", false},
		{"backup_2026-01-02_03-04-05.json.bz2", false, "", "", false},
		{"backup_2026-01-02_03-04-05_x.sql", false, "", "", false},
		{"backup_yesterday.sql", false, "", "", false},
		{"notes.txt", false, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := codec.ParseName(tt.name)
			require.Equal(t, tt.ok, ok)
			if !tt.ok {
				return
			}
			assert.Equal(t, tt.format, parsed.Format)
			assert.Equal(t, tt.compression, parsed.Compression)
			assert.Equal(t, tt.encrypted, parsed.Encrypted)
			assert.True(t, at.Equal(parsed.CreatedAt))
		})
	}
}

func TestContainerCodec_EncodeDecode(t *testing.T) {
	sealer := newTestSealer(t)
	doc, err := sealer.Seal(sampleTables(), SealOptions{CreatedBy: "test"})
	require.NoError(t, err)

	enc, err := NewEncryptor("passphrase")
	require.NoError(t, err)

	for _, tc := range []struct {
		name      string
		algorithm CompressionType
		encryptor *Encryptor
	}{
		{"gzip", CompressionTypeGzip, nil},
		{"zstd", CompressionTypeZstd, nil},
		{"lz4 encrypted", CompressionTypeLZ4, enc},
	} {
		t.Run(tc.name, func(t *testing.T) {
			codec := newTestCodec(t, tc.algorithm, tc.encryptor)
			name := codec.Name(BackupFormatSealed, doc.Metadata.CreatedAt, 0)

			data, stats, err := codec.Encode(doc)
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), stats.CompressedSize)

			decoded, err := codec.Decode(name, data)
			require.NoError(t, err)
			assert.Equal(t, doc.Metadata.TotalChecksum, decoded.Metadata.TotalChecksum)
			assert.Len(t, decoded.Tables["locations"], 3)

			ok, err := sealer.VerifySignature(decoded)
			require.NoError(t, err)
			assert.True(t, ok)

			meta, err := codec.DecodeMetadata(name, bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, doc.Metadata.Signature, meta.Signature)
			assert.Equal(t, 2, meta.Tables["sites"].RowCount)
		})
	}
}

func TestContainerCodec_EncryptedWithoutPassphrase(t *testing.T) {
	enc, err := NewEncryptor("passphrase")
	require.NoError(t, err)
	doc, err := newTestSealer(t).Seal(sampleTables(), SealOptions{})
	require.NoError(t, err)

	writer := newTestCodec(t, CompressionTypeGzip, enc)
	name := writer.Name(BackupFormatSealed, doc.Metadata.CreatedAt, 0)
	data, _, err := writer.Encode(doc)
	require.NoError(t, err)

	reader := newTestCodec(t, CompressionTypeGzip, nil)
	_, err = reader.Decode(name, data)
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeConfiguration))
}

func TestDecodeMetadata_StopsBeforeTables(t *testing.T) {
	codec := newTestCodec(t, CompressionTypeGzip, nil)
	// Everything after the metadata object is garbage and must never be parsed.
	raw := []byte(`{"format":"mysql-data-vault","version":"2.0","metadata":{"created_by":"ops","total_checksum":"abc","tables":{"sites":{"row_count":4,"checksum":"x"}}},"tables": !!!not json`)

	compressed, _, err := codec.compression.Compress(raw, CompressionTypeGzip, 0)
	require.NoError(t, err)

	meta, err := codec.DecodeMetadata("backup_2026-01-02_03-04-05.json.gz", bytes.NewReader(compressed))
	require.NoError(t, err)
	assert.Equal(t, "ops", meta.CreatedBy)
	assert.Equal(t, 4, meta.Tables["sites"].RowCount)
}

func TestDecodeMetadata_Errors(t *testing.T) {
	codec := newTestCodec(t, CompressionTypeGzip, nil)

	_, err := codec.DecodeMetadata("backup_2026-01-02_03-04-05.sql", bytes.NewReader(nil))
	assert.True(t, IsType(err, BackupErrorTypeInvalidEncoding))

	wrongFormat, _, err := codec.compression.Compress([]byte(`{"format":"other","metadata":{}}`), CompressionTypeGzip, 0)
	require.NoError(t, err)
	_, err = codec.DecodeMetadata("backup_2026-01-02_03-04-05.json.gz", bytes.NewReader(wrongFormat))
	assert.True(t, IsType(err, BackupErrorTypeMalformedDocument))

	noMeta, _, err := codec.compression.Compress([]byte(`{"format":"mysql-data-vault","tables":{}}`), CompressionTypeGzip, 0)
	require.NoError(t, err)
	_, err = codec.DecodeMetadata("backup_2026-01-02_03-04-05.json.gz", bytes.NewReader(noMeta))
	assert.True(t, IsType(err, BackupErrorTypeMalformedDocument))
}

func TestContainerCodec_Decode_Malformed(t *testing.T) {
	codec := newTestCodec(t, CompressionTypeGzip, nil)
	compressed, _, err := codec.compression.Compress([]byte(`[1,2,3]`), CompressionTypeGzip, 0)
	require.NoError(t, err)

	_, err = codec.Decode("backup_2026-01-02_03-04-05.json.gz", compressed)
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeMalformedDocument))

	_, err = codec.Decode("backup_2026-01-02_03-04-05.json.gz", []byte("not gzip"))
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeInvalidEncoding))
}

func TestContainerCodec_SQL(t *testing.T) {
	enc, err := NewEncryptor("passphrase")
	require.NoError(t, err)
	codec := newTestCodec(t, CompressionTypeGzip, enc)

	script := "INSERT INTO `sites` (`id`) VALUES (1);\n"
	data, err := codec.EncodeSQL(script)
	require.NoError(t, err)

	got, err := codec.DecodeSQL("backup_2026-01-02_03-04-05.sql.enc", data)
	require.NoError(t, err)
	assert.Equal(t, script, got)

	plain := newTestCodec(t, CompressionTypeGzip, nil)
	_, err = plain.DecodeSQL("backup_2026-01-02_03-04-05.sql", []byte{0xff, 0xfe, 0x00})
	require.Error(t, err)
	assert.True(t, IsType(err, BackupErrorTypeInvalidEncoding))

	_, err = plain.DecodeSQL("backup_2026-01-02_03-04-05.json.gz", []byte("x"))
	assert.True(t, IsType(err, BackupErrorTypeInvalidEncoding))
}
