package authsvc_test

import (
	"bytes"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mkrupp/tokenauth/internal/svc/authsvc"
)

func TestGetPrivateKeyGeneratesAndReloads(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "keys", "authsvc.key")

	generated, err := authsvc.GetPrivateKey(path)
	if err != nil {
		t.Fatalf("GetPrivateKey() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat key file: %v", err)
	}

	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("key file mode = %o, want 600", perm)
	}

	loaded, err := authsvc.GetPrivateKey(path)
	if err != nil {
		t.Fatalf("GetPrivateKey() reload error = %v", err)
	}

	if !generated.Equal(loaded) {
		t.Error("reloaded key differs from generated key")
	}
}

func TestDecodePrivateKey(t *testing.T) {
	t.Parallel()

	key := testSigningKey(t)

	pkcs1, err := authsvc.EncodePrivateKey(key)
	if err != nil {
		t.Fatalf("EncodePrivateKey() error = %v", err)
	}

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}

	pkcs8 := pem.EncodeToMemory(&pem.Block{Type: authsvc.KeyTypePKCS8, Bytes: der})
	other := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "pkcs1", input: pkcs1},
		{name: "pkcs8", input: pkcs8},
		{name: "not pem", input: []byte("garbage"), wantErr: authsvc.ErrInvalidSigningKey},
		{name: "wrong block type", input: other, wantErr: authsvc.ErrInvalidSigningKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			decoded, err := authsvc.DecodePrivateKey(bytes.NewReader(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodePrivateKey() error = %v, want %v", err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("DecodePrivateKey() error = %v", err)
			}

			if !key.Equal(decoded) {
				t.Error("decoded key differs from original")
			}
		})
	}
}
