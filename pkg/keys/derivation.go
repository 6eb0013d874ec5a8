package keys

import (
	"fmt"

	"github.com/falk/wadsplit-go/pkg/crypto"
)

// CommonKeyName maps a ticket's common key index to its keys file name.
func CommonKeyName(index uint8) (string, error) {
	switch index {
	case 0:
		return CommonKey, nil
	case 1:
		return KoreanKey, nil
	case 2:
		return VWiiCommonKey, nil
	}
	return "", fmt.Errorf("keys: invalid common key index %d", index)
}

// DecryptTitleKey decrypts a ticket title key with the common key selected by index.
func DecryptTitleKey(encryptedKey []byte, index uint8, titleID uint64) ([]byte, error) {
	name, err := CommonKeyName(index)
	if err != nil {
		return nil, err
	}

	commonKey := Get(name)
	if commonKey == nil {
		return nil, fmt.Errorf("%s not loaded", name)
	}

	return crypto.DecryptTitleKey(encryptedKey, commonKey, titleID)
}
