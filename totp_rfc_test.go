package authcore

import (
	"strings"
	"testing"
	"time"
)

// Reference vectors from RFC 6238 appendix B. The published vectors use
// 8 digits; the expected values here are their 6-digit truncations, which
// exercise the same HMAC and dynamic-truncation path the platform runs.
func TestVerifyCodeRFCVectors(t *testing.T) {
	secretSHA1 := []byte("12345678901234567890")
	secretSHA256 := []byte("12345678901234567890123456789012")
	secretSHA512 := []byte("1234567890123456789012345678901234567890123456789012345678901234")

	cases := []struct {
		name      string
		algorithm string
		secret    []byte
		unix      int64
		code      string
	}{
		{"sha1/1970", "SHA1", secretSHA1, 59, "287082"},
		{"sha1/2005", "SHA1", secretSHA1, 1111111109, "081804"},
		{"sha1/2005b", "SHA1", secretSHA1, 1111111111, "050471"},
		{"sha1/2009", "SHA1", secretSHA1, 1234567890, "005924"},
		{"sha1/2033", "SHA1", secretSHA1, 2000000000, "279037"},
		{"sha1/2603", "SHA1", secretSHA1, 20000000000, "353130"},
		{"sha256/1970", "SHA256", secretSHA256, 59, "119246"},
		{"sha256/2005", "SHA256", secretSHA256, 1111111109, "084774"},
		{"sha256/2603", "SHA256", secretSHA256, 20000000000, "737706"},
		{"sha512/1970", "SHA512", secretSHA512, 59, "693936"},
		{"sha512/2005", "SHA512", secretSHA512, 1111111109, "091201"},
		{"sha512/2603", "SHA512", secretSHA512, 20000000000, "618901"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTOTPManager(TOTPConfig{
				Digits:    6,
				Period:    30,
				Algorithm: tc.algorithm,
			})

			ok, step, err := m.VerifyCode(tc.secret, tc.code, time.Unix(tc.unix, 0))
			if err != nil {
				t.Fatalf("VerifyCode: %v", err)
			}
			if !ok {
				t.Fatalf("code %q rejected at t=%d", tc.code, tc.unix)
			}
			if want := tc.unix / 30; step != want {
				t.Fatalf("matched step = %d, want %d", step, want)
			}
		})
	}
}

func TestVerifyCodeSkew(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1})
	secret := []byte("12345678901234567890")
	now := time.Unix(1111111111, 0)

	previous, err := hotpCode(secret, now.Unix()/30-1, 6, "SHA1")
	if err != nil {
		t.Fatal(err)
	}
	next, err := hotpCode(secret, now.Unix()/30+1, 6, "SHA1")
	if err != nil {
		t.Fatal(err)
	}
	stale, err := hotpCode(secret, now.Unix()/30-2, 6, "SHA1")
	if err != nil {
		t.Fatal(err)
	}

	if ok, _, _ := m.VerifyCode(secret, previous, now); !ok {
		t.Error("code one step behind rejected")
	}
	if ok, _, _ := m.VerifyCode(secret, next, now); !ok {
		t.Error("code one step ahead rejected")
	}
	if ok, _, _ := m.VerifyCode(secret, stale, now); ok {
		t.Error("code two steps behind accepted")
	}
}

func TestVerifyCodeRejectsMalformedInput(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30, Algorithm: "SHA1"})
	secret := []byte("12345678901234567890")
	now := time.Unix(59, 0)

	for _, code := range []string{"", "28708", "2870822", "28708a", "28 708", "-28708"} {
		ok, _, err := m.VerifyCode(secret, code, now)
		if err != nil {
			t.Fatalf("VerifyCode(%q): %v", code, err)
		}
		if ok {
			t.Errorf("malformed code %q accepted", code)
		}
	}

	// Surrounding whitespace is the one normalization users get.
	if ok, _, _ := m.VerifyCode(secret, " 287082 ", now); !ok {
		t.Error("whitespace-padded valid code rejected")
	}
}

func TestGenerateSecret(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Digits: 6, Period: 30})

	raw, encoded, err := m.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != totpSecretBytes {
		t.Fatalf("secret length = %d, want %d", len(raw), totpSecretBytes)
	}
	if encoded == "" {
		t.Fatal("empty encoded secret")
	}

	_, encoded2, err := m.GenerateSecret()
	if err != nil {
		t.Fatal(err)
	}
	if encoded == encoded2 {
		t.Fatal("two generated secrets are identical")
	}
}

func TestProvisionURI(t *testing.T) {
	m := newTOTPManager(TOTPConfig{Issuer: "ScriptBay", Digits: 6, Period: 30, Algorithm: "SHA1"})

	uri := m.ProvisionURI("JBSWY3DPEHPK3PXP", "dev@example.com")
	const wantPrefix = "otpauth://totp/ScriptBay:dev@example.com?"
	if !strings.HasPrefix(uri, wantPrefix) {
		t.Fatalf("uri = %q, want prefix %q", uri, wantPrefix)
	}
	for _, fragment := range []string{"secret=JBSWY3DPEHPK3PXP", "issuer=ScriptBay", "period=30", "digits=6", "algorithm=SHA1"} {
		if !strings.Contains(uri, fragment) {
			t.Errorf("uri missing %q: %s", fragment, uri)
		}
	}
}
