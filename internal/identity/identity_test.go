package identity

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSetupGeneratesFreshIdentity(t *testing.T) {
	workDir := t.TempDir()

	id, err := Setup(workDir, "")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if id.BotID == "" || len(id.BotID) != 8 {
		t.Fatalf("expected an 8-char bot_id, got %q", id.BotID)
	}
	if filepath.Dir(id.IdentityDir) != workDir {
		t.Fatalf("expected identity dir under %s, got %s", workDir, id.IdentityDir)
	}

	info, err := os.Stat(filepath.Join(id.IdentityDir, seedFile))
	if err != nil {
		t.Fatalf("stat seed file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected seed file mode 0600, got %o", info.Mode().Perm())
	}
}

func TestSetupLoadsExistingIdentity(t *testing.T) {
	workDir := t.TempDir()

	first, err := Setup(workDir, "")
	if err != nil {
		t.Fatalf("first setup: %v", err)
	}

	second, err := Setup(workDir, "")
	if err != nil {
		t.Fatalf("second setup: %v", err)
	}
	if second.BotID != first.BotID {
		t.Fatalf("expected the same bot_id on reload, got %s vs %s", first.BotID, second.BotID)
	}
}

func TestSetupRejectsAmbiguousWorkDir(t *testing.T) {
	workDir := t.TempDir()

	if _, err := Setup(workDir, filepath.Join(workDir, "bot-pkeyaaaaaaaa")); err != nil {
		t.Fatalf("seed first identity: %v", err)
	}
	if _, err := Setup(workDir, filepath.Join(workDir, "bot-pkeybbbbbbbb")); err != nil {
		t.Fatalf("seed second identity: %v", err)
	}

	if _, err := Setup(workDir, ""); err == nil {
		t.Fatal("expected an error when multiple identity directories exist")
	}
}

func TestLoadKeypairDetectsMismatch(t *testing.T) {
	workDir := t.TempDir()
	id, err := Setup(workDir, "")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	// Corrupt the stored verifying key so it no longer matches the seed.
	pubPath := filepath.Join(id.IdentityDir, pubFile)
	corrupt := make([]byte, 32)
	if err := os.WriteFile(pubPath, corrupt, 0o644); err != nil {
		t.Fatalf("corrupt pub file: %v", err)
	}

	if _, err := Setup(workDir, id.IdentityDir); err == nil {
		t.Fatal("expected a keypair mismatch error")
	}
}

func TestQRPNGProducesNonEmptyImage(t *testing.T) {
	workDir := t.TempDir()
	id, err := Setup(workDir, "")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	png, err := id.QRPNG(128)
	if err != nil {
		t.Fatalf("qr png: %v", err)
	}
	if len(png) == 0 {
		t.Fatal("expected non-empty PNG bytes")
	}
}
