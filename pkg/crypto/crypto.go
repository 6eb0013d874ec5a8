package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// Cipher cache to avoid recreating AES ciphers for the same key
var (
	cipherCache   = make(map[[16]byte]cipher.Block)
	cipherCacheMu sync.RWMutex
)

func getCachedCipher(key []byte) (cipher.Block, error) {
	if len(key) != 16 {
		return nil, fmt.Errorf("key must be 16 bytes, got %d", len(key))
	}

	var keyArr [16]byte
	copy(keyArr[:], key)

	cipherCacheMu.RLock()
	block, ok := cipherCache[keyArr]
	cipherCacheMu.RUnlock()
	if ok {
		return block, nil
	}

	cipherCacheMu.Lock()
	defer cipherCacheMu.Unlock()

	if block, ok = cipherCache[keyArr]; ok {
		return block, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	cipherCache[keyArr] = block
	return block, nil
}

// TitleKeyIV is the title ID, big endian, followed by zeroes.
func TitleKeyIV(titleID uint64) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint64(iv, titleID)
	return iv
}

// ContentIV is the content index, big endian, followed by zeroes.
func ContentIV(index uint16) []byte {
	iv := make([]byte, aes.BlockSize)
	binary.BigEndian.PutUint16(iv, index)
	return iv
}

// CBCDecrypt decrypts data using AES-128-CBC.
func CBCDecrypt(data, key, iv []byte) ([]byte, error) {
	block, err := getCachedCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("data length not multiple of block size")
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// CBCEncrypt encrypts data using AES-128-CBC.
func CBCEncrypt(data, key, iv []byte) ([]byte, error) {
	block, err := getCachedCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("data length not multiple of block size")
	}

	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}

// DecryptTitleKey decrypts a ticket's title key with a common key.
func DecryptTitleKey(encryptedKey, commonKey []byte, titleID uint64) ([]byte, error) {
	return CBCDecrypt(encryptedKey, commonKey, TitleKeyIV(titleID))
}

// EncryptTitleKey is the inverse of DecryptTitleKey.
func EncryptTitleKey(titleKey, commonKey []byte, titleID uint64) ([]byte, error) {
	return CBCEncrypt(titleKey, commonKey, TitleKeyIV(titleID))
}

// ContentReader decrypts a stream of AES-128-CBC blocks.
type ContentReader struct {
	r    io.Reader
	mode cipher.BlockMode
	buf  []byte
	out  []byte
	err  error
}

const contentChunk = 0x10000

// NewContentReader decrypts content read from r with the title key. r must
// yield a multiple of 16 bytes.
func NewContentReader(r io.Reader, titleKey []byte, index uint16) (*ContentReader, error) {
	block, err := getCachedCipher(titleKey)
	if err != nil {
		return nil, err
	}
	return &ContentReader{
		r:    r,
		mode: cipher.NewCBCDecrypter(block, ContentIV(index)),
		buf:  make([]byte, contentChunk),
	}, nil
}

func (cr *ContentReader) Read(p []byte) (int, error) {
	for len(cr.out) == 0 {
		if cr.err != nil {
			return 0, cr.err
		}
		n, err := io.ReadFull(cr.r, cr.buf)
		switch err {
		case nil:
		case io.EOF:
			cr.err = io.EOF
		case io.ErrUnexpectedEOF:
			cr.err = io.EOF
			if n%aes.BlockSize != 0 {
				cr.err = fmt.Errorf("content length not multiple of block size")
				n -= n % aes.BlockSize
			}
		default:
			cr.err = err
		}
		chunk := cr.buf[:n]
		cr.mode.CryptBlocks(chunk, chunk)
		cr.out = chunk
	}
	n := copy(p, cr.out)
	cr.out = cr.out[n:]
	return n, nil
}
