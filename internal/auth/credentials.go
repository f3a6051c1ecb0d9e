package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/gatekeeper/internal/model"
)

// Credential は起動時に読み込む固定のログイン情報。
type Credential struct {
	Username string
	Secret   string
	Role     model.Role
}

// credentialEntry はハッシュ化済みのシークレットとロール。
type credentialEntry struct {
	hash []byte
	role model.Role
}

// CredentialStore はユーザー名からシークレットへの固定マッピング。
// 起動後は変更しないため、読み取りに同期は不要。
type CredentialStore struct {
	entries map[string]credentialEntry
	// dummyHash は存在しないユーザー名でも同じ比較コストを払うためのハッシュ。
	dummyHash []byte
}

// NewCredentialStore はシークレットをbcryptでハッシュ化してCredentialStoreを生成する。
// costにはbcrypt.MinCostからbcrypt.MaxCostまでを指定する。
func NewCredentialStore(creds []Credential, cost int) (*CredentialStore, error) {
	store := &CredentialStore{
		entries: make(map[string]credentialEntry, len(creds)),
	}

	for _, c := range creds {
		if c.Username == "" || c.Secret == "" {
			return nil, fmt.Errorf("credential username and secret must not be empty")
		}
		if !c.Role.Valid() {
			return nil, fmt.Errorf("credential %q has unknown role %q", c.Username, c.Role)
		}
		if _, dup := store.entries[c.Username]; dup {
			return nil, fmt.Errorf("duplicate credential for %q", c.Username)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(c.Secret), cost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash secret for %q: %w", c.Username, err)
		}
		store.entries[c.Username] = credentialEntry{hash: hash, role: c.Role}
	}

	dummy := make([]byte, 16)
	if _, err := rand.Read(dummy); err != nil {
		return nil, fmt.Errorf("failed to generate dummy secret: %w", err)
	}
	dummyHash, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(dummy)), cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash dummy secret: %w", err)
	}
	store.dummyHash = dummyHash

	return store, nil
}

// Authenticate はユーザー名とシークレットを照合し、一致した場合はロールを返す。
// 比較はbcryptで行い、ユーザー名が存在しない場合もダミーハッシュと比較して
// 応答時間からユーザーの存在を推測できないようにする。
func (s *CredentialStore) Authenticate(username, secret string) (model.Role, error) {
	entry, ok := s.entries[username]
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(secret))
		return "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(entry.hash, []byte(secret)); err != nil {
		return "", ErrInvalidCredentials
	}
	return entry.role, nil
}

// Len は登録されているクレデンシャル数を返す。
func (s *CredentialStore) Len() int {
	return len(s.entries)
}

// ParseCredentials は "username:secret:role" をカンマ区切りで並べた文字列を解析する。
// シークレットにはコロンを含めてよい（最初と最後のコロンで分割する）。
func ParseCredentials(raw string) ([]Credential, error) {
	var creds []Credential
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		first := strings.Index(part, ":")
		last := strings.LastIndex(part, ":")
		if first <= 0 || last == first || last == len(part)-1 {
			return nil, fmt.Errorf("credential entry must be username:secret:role")
		}

		username := part[:first]
		creds = append(creds, Credential{
			Username: username,
			Secret:   part[first+1 : last],
			Role:     model.Role(part[last+1:]),
		})
	}

	if len(creds) == 0 {
		return nil, fmt.Errorf("no credentials configured")
	}
	return creds, nil
}
