// Package identity manages the bot's ed25519 keypair: generation,
// on-disk persistence, and derivation of the short bot_id used to name
// the bot's working directory.
//
// Layout under the work directory:
//
//	~/.araliya/
//	└── bot-pkey{8-hex}/
//	    ├── id_ed25519       (32-byte signing key seed, mode 0600)
//	    └── id_ed25519.pub   (32-byte verifying key, mode 0644)
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/araliya/araliya-bot/internal/apperr"
)

const (
	seedFile = "id_ed25519"
	pubFile  = "id_ed25519.pub"
)

// Identity is the bot's loaded keypair and the directory it lives in.
type Identity struct {
	BotID         string
	IdentityDir   string
	VerifyingKey  [32]byte
	signingSeed   [32]byte
}

// VerifyingKeyBytes returns the verifying key as a slice.
func (id *Identity) VerifyingKeyBytes() []byte {
	return id.VerifyingKey[:]
}

// SigningKey reconstructs the full ed25519 private key from the
// stored seed.
func (id *Identity) SigningKey() ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(id.signingSeed[:])
}

// QRPNG renders the bot's public key as a QR code PNG, used by the
// management tree to offer a scannable identity.
func (id *Identity) QRPNG(size int) ([]byte, error) {
	payload := fmt.Sprintf("araliya:%s:%s", id.BotID, hex.EncodeToString(id.VerifyingKey[:]))
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return nil, apperr.Identity("render qr", err)
	}
	return png, nil
}

// Setup loads or creates the bot identity rooted at workDir. If
// explicitDir is non-empty it is used directly (created and generated
// if it doesn't yet exist). Otherwise Setup discovers existing
// "bot-pkey*" directories under workDir: none generates a fresh
// identity, exactly one is loaded, and more than one is a
// configuration error requiring the caller to set an explicit
// directory.
func Setup(workDir, explicitDir string) (*Identity, error) {
	var (
		seed [32]byte
		vk   [32]byte
		dir  string
		err  error
	)

	switch {
	case explicitDir != "":
		dir = explicitDir
		if _, statErr := os.Stat(dir); statErr == nil {
			seed, vk, err = loadKeypair(dir)
		} else {
			seed, vk = generateKeypair()
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, apperr.Identity("create identity dir", mkErr)
			}
			err = saveKeypair(dir, seed, vk)
		}

	default:
		var dirs []string
		dirs, err = findExistingIdentityDirs(workDir)
		if err != nil {
			break
		}
		switch len(dirs) {
		case 0:
			seed, vk = generateKeypair()
			botID := computeBotID(vk)
			dir = filepath.Join(workDir, "bot-pkey"+botID)
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, apperr.Identity("create identity dir", mkErr)
			}
			err = saveKeypair(dir, seed, vk)
		case 1:
			dir = dirs[0]
			seed, vk, err = loadKeypair(dir)
		default:
			err = fmt.Errorf("multiple identity directories found in %s (%s); set an explicit identity_dir",
				workDir, strings.Join(baseNames(dirs), ", "))
		}
	}

	if err != nil {
		return nil, apperr.Identity("setup", err)
	}

	return &Identity{
		BotID:        computeBotID(vk),
		IdentityDir:  dir,
		VerifyingKey: vk,
		signingSeed:  seed,
	}, nil
}

// computeBotID derives the bot_id: the first 8 hex characters of
// SHA256(verifying_key_bytes).
func computeBotID(vk [32]byte) string {
	digest := sha256.Sum256(vk[:])
	return hex.EncodeToString(digest[:])[:8]
}

func generateKeypair() (seed, vk [32]byte) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		// crypto/rand failing is an unrecoverable host condition, not a
		// data-dependent error the caller could handle differently.
		panic("identity: crypto/rand unavailable: " + err.Error())
	}
	copy(seed[:], priv.Seed())
	copy(vk[:], pub)
	return seed, vk
}

func saveKeypair(dir string, seed, vk [32]byte) error {
	secretPath := filepath.Join(dir, seedFile)
	pubPath := filepath.Join(dir, pubFile)

	if err := os.WriteFile(secretPath, seed[:], 0o600); err != nil {
		return fmt.Errorf("write %s: %w", seedFile, err)
	}
	if err := os.WriteFile(pubPath, vk[:], 0o644); err != nil {
		return fmt.Errorf("write %s: %w", pubFile, err)
	}
	// WriteFile honors the mode only on create; re-assert explicitly in
	// case the files already existed with looser permissions.
	if err := os.Chmod(secretPath, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", seedFile, err)
	}
	if err := os.Chmod(pubPath, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", pubFile, err)
	}
	return nil
}

func loadKeypair(dir string) (seed, vk [32]byte, err error) {
	seedBytes, err := os.ReadFile(filepath.Join(dir, seedFile))
	if err != nil {
		return seed, vk, fmt.Errorf("read %s: %w", seedFile, err)
	}
	vkBytes, err := os.ReadFile(filepath.Join(dir, pubFile))
	if err != nil {
		return seed, vk, fmt.Errorf("read %s: %w", pubFile, err)
	}
	if len(seedBytes) != 32 {
		return seed, vk, fmt.Errorf("%s is not 32 bytes", seedFile)
	}
	if len(vkBytes) != 32 {
		return seed, vk, fmt.Errorf("%s is not 32 bytes", pubFile)
	}
	copy(seed[:], seedBytes)
	copy(vk[:], vkBytes)

	reconstructed := ed25519.NewKeyFromSeed(seed[:]).Public().(ed25519.PublicKey)
	if !ed25519ArrayEqual(reconstructed, vk) {
		return seed, vk, fmt.Errorf("keypair mismatch: verifying key does not match signing key seed")
	}
	return seed, vk, nil
}

func ed25519ArrayEqual(pub ed25519.PublicKey, vk [32]byte) bool {
	if len(pub) != 32 {
		return false
	}
	for i := range vk {
		if pub[i] != vk[i] {
			return false
		}
	}
	return true
}

func findExistingIdentityDirs(workDir string) ([]string, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read work_dir: %w", err)
	}
	var candidates []string
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "bot-pkey") {
			continue
		}
		dir := filepath.Join(workDir, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, seedFile)); err == nil {
			candidates = append(candidates, dir)
		}
	}
	return candidates, nil
}

func baseNames(dirs []string) []string {
	names := make([]string, len(dirs))
	for i, d := range dirs {
		names[i] = filepath.Base(d)
	}
	return names
}
