package keys

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/apex/log"
)

// Key names recognised in a keys file.
const (
	CommonKey     = "common_key"
	KoreanKey     = "korean_key"
	VWiiCommonKey = "vwii_common_key"
)

var ErrNotFound = errors.New("keys: no keys file found")

var (
	keys = make(map[string][]byte)
	mu   sync.RWMutex
)

// Load reads keys from a file.
// Format expected: key_name = HEXVALUE
func Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		parts := strings.SplitN(text, "=", 2)
		if len(parts) != 2 {
			continue
		}

		name := strings.TrimSpace(parts[0])
		val, err := hex.DecodeString(strings.TrimSpace(parts[1]))
		if err != nil {
			log.WithField("file", path).WithField("line", line).Warnf("skipping %s: %v", name, err)
			continue
		}
		Set(name, val)
	}

	return scanner.Err()
}

// Set stores a key under name.
func Set(name string, val []byte) {
	mu.Lock()
	keys[name] = append([]byte(nil), val...)
	mu.Unlock()
}

// Get retrieves a key by name. Returns nil if not found.
func Get(name string) []byte {
	mu.RLock()
	defer mu.RUnlock()
	if k, ok := keys[name]; ok {
		dest := make([]byte, len(k))
		copy(dest, k)
		return dest
	}
	return nil
}

// Reset forgets every loaded key.
func Reset() {
	mu.Lock()
	keys = make(map[string][]byte)
	mu.Unlock()
}

// DefaultPaths lists the locations LoadDefault tries, in order.
func DefaultPaths() []string {
	paths := []string{"keys.txt"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".wii", "keys.txt"))
	}
	return paths
}

// LoadDefault tries to load keys from standard locations.
func LoadDefault() error {
	for _, p := range DefaultPaths() {
		if _, err := os.Stat(p); err == nil {
			return Load(p)
		}
	}
	return fmt.Errorf("%w (tried %s)", ErrNotFound, strings.Join(DefaultPaths(), ", "))
}
