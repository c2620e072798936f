package scraper

import (
	"bytes"
	"crypto/cipher"
	"crypto/des"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// ShowBox API constants baked into the Android client
const (
	showboxAppKey  = "moviebox"
	showboxAppID   = "com.tdo.showbox"
	showboxKey     = "123d6cedf626dy54233aa1w6"
	showboxIV      = "wEiphTn!"
	showboxVersion = "129"
)

// encryptShowBox encrypts plain with TripleDES-CBC and PKCS#7 padding and
// returns it base64 encoded.
func encryptShowBox(plain []byte, key, iv string) (string, error) {
	block, err := des.NewTripleDESCipher([]byte(key))
	if err != nil {
		return "", fmt.Errorf("tripledes key: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return "", fmt.Errorf("tripledes iv must be %d bytes", block.BlockSize())
	}

	padded := pkcs7Pad(plain, block.BlockSize())
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(out, padded)
	return base64.StdEncoding.EncodeToString(out), nil
}

// decryptShowBox reverses encryptShowBox
func decryptShowBox(encoded, key, iv string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	block, err := des.NewTripleDESCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("tripledes key: %w", err)
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext is not a multiple of the block size")
	}
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, []byte(iv)).CryptBlocks(out, data)
	return pkcs7Unpad(out, block.BlockSize())
}

func pkcs7Pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(data[:len(data):len(data)], bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, fmt.Errorf("bad padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("bad padding")
		}
	}
	return data[:len(data)-n], nil
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// showboxVerify is md5(md5(appKey) + key + encrypted)
func showboxVerify(encrypted, appKey, key string) string {
	return md5Hex(md5Hex(appKey) + key + encrypted)
}

// randomToken returns 32 random hex characters
func randomToken() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return strings.Repeat("0", 32)
	}
	return hex.EncodeToString(b[:])
}

// buildShowBoxBody encrypts payload and wraps it in the base64 envelope
// posted as the "data" form field.
func buildShowBoxBody(payload map[string]any) (string, error) {
	plain, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	encrypted, err := encryptShowBox(plain, showboxKey, showboxIV)
	if err != nil {
		return "", err
	}
	envelope, err := json.Marshal(map[string]string{
		"app_key":      md5Hex(showboxAppKey),
		"verify":       showboxVerify(encrypted, showboxAppKey, showboxKey),
		"encrypt_data": encrypted,
	})
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(envelope), nil
}
