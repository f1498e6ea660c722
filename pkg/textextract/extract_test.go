package textextract

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTXT(t *testing.T) {
	data := []byte("  hello world\n")
	result, err := Extract(bytes.NewReader(data), int64(len(data)), ".txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Content)
	assert.Equal(t, 1, result.Pages)
}

func TestExtractDOCX(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document><w:body><w:p><w:r><w:t>Quarterly</w:t></w:r><w:r><w:t>report</w:t></w:r></w:p></w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	result, err := Extract(bytes.NewReader(buf.Bytes()), int64(buf.Len()), "docx")
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report", result.Content)
}

func TestExtractUnsupportedType(t *testing.T) {
	_, err := Extract(bytes.NewReader(nil), 0, ".exe")
	assert.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(".pdf"))
	assert.True(t, Supported("TXT"))
	assert.True(t, Supported("docx"))
	assert.False(t, Supported(".csv"))
}
