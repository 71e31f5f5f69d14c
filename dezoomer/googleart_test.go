package dezoomer

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGAPDecryptPassesThroughUnmarked(t *testing.T) {
	plain := []byte("not encrypted, no marker here")
	out, err := gapDecrypt(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func buildEncryptedGAPTile(t *testing.T, header, plaintext, footer []byte) []byte {
	t.Helper()
	require.Zero(t, len(plaintext)%aes.BlockSize, "plaintext must be block-aligned for this test fixture")

	block, err := aes.NewCipher(gapAESKey)
	require.NoError(t, err)
	encrypted := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, gapAESIV).CryptBlocks(encrypted, plaintext)

	var buf []byte
	marker := make([]byte, 4)
	binary.LittleEndian.PutUint32(marker, 0x0A0A0A0A)
	buf = append(buf, marker...)
	buf = append(buf, header...)

	encLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(encLen, uint32(len(encrypted)))
	buf = append(buf, encLen...)
	buf = append(buf, encrypted...)
	buf = append(buf, footer...)

	headerSize := make([]byte, 4)
	binary.LittleEndian.PutUint32(headerSize, uint32(len(header)))
	buf = append(buf, headerSize...)
	return buf
}

func TestGAPDecryptRoundTrip(t *testing.T) {
	header := []byte("JFIFheader")
	plaintext := make([]byte, aes.BlockSize*2)
	copy(plaintext, []byte("round trip payload bytes!!"))
	footer := []byte("tail")

	tile := buildEncryptedGAPTile(t, header, plaintext, footer)

	out, err := gapDecrypt(tile)
	require.NoError(t, err)
	assert.Equal(t, append(append(append([]byte{}, header...), plaintext...), footer...), out)
}

func TestParseGAPPageExtractsTokenAndBaseURL(t *testing.T) {
	page := `some prefix junk ],"//lh3.googleusercontent.com/abc123","sometoken") more junk`
	info, err := parseGAPPage(page)
	require.NoError(t, err)
	assert.Equal(t, "https://lh3.googleusercontent.com/abc123", info.baseURL)
	assert.Equal(t, "sometoken", info.token)
}

func TestParseGAPPageNotFound(t *testing.T) {
	_, err := parseGAPPage("no token in here at all")
	assert.Error(t, err)
}

func TestGAPPagePathFromBaseURL(t *testing.T) {
	p := gapPageInfo{baseURL: "https://lh3.googleusercontent.com/ci/abcdef"}
	assert.Equal(t, "ci/abcdef", p.path())
}

func TestGAPComputeURLDeterministic(t *testing.T) {
	page := gapPageInfo{baseURL: "https://lh3.googleusercontent.com/ci/abcdef", token: "tok"}
	url1 := gapComputeURL(page, 1, 2, 0)
	url2 := gapComputeURL(page, 1, 2, 0)
	assert.Equal(t, url1, url2)
	assert.Contains(t, url1, "=x1-y2-z0-t")

	urlOther := gapComputeURL(page, 2, 2, 0)
	assert.NotEqual(t, url1, urlOther)
}
