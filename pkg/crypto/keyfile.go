package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrCorruptKeyFile - key-файл существует, но не содержит валидный ключ
var ErrCorruptKeyFile = errors.New("key file is corrupt")

// LoadOrCreateKey возвращает ключ шифрования из key-файла.
//
// Если файл отсутствует, генерируется новый ключ и записывается в файл
// с правами 0600. Механизма ротации нет: ключ создается один раз на
// все время жизни хранилища учетных данных.
func LoadOrCreateKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
		if decErr != nil || len(key) != KeySize {
			return nil, fmt.Errorf("%w: %s", ErrCorruptKeyFile, path)
		}
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create key directory: %w", err)
		}
	}

	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(path, []byte(encoded+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}

	return key, nil
}
