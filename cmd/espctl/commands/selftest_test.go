package commands

import "testing"

func TestRunSelftestAESHMACSHA1(t *testing.T) {
	t.Parallel()

	if err := runSelftest("aes-cbc", "hmac-sha1-96"); err != nil {
		t.Errorf("runSelftest(aes-cbc, hmac-sha1-96): %v", err)
	}
}

func TestRunSelftestBlowfishHMACSHA256(t *testing.T) {
	t.Parallel()

	if err := runSelftest("blowfish-cbc", "hmac-sha256-128"); err != nil {
		t.Errorf("runSelftest(blowfish-cbc, hmac-sha256-128): %v", err)
	}
}

func TestRunSelftestUnknownCipher(t *testing.T) {
	t.Parallel()

	if err := runSelftest("xor", "hmac-sha1-96"); err == nil {
		t.Error("expected error for unknown cipher, got nil")
	}
}
