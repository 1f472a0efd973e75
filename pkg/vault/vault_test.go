package vault

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/driftwatch-net/driftwatch/pkg/schema"
	"github.com/driftwatch-net/driftwatch/pkg/util"
)

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv(MasterKeyEnv, key)

	v, err := Open(filepath.Join(t.TempDir(), "vault"))
	if err != nil {
		t.Fatalf("opening vault: %v", err)
	}
	return v
}

func testCred() schema.Credential {
	return schema.Credential{
		Host:          "10.0.0.1",
		Username:      "audit",
		Password:      "hunter2-secret",
		Port:          22,
		SNMPCommunity: "private",
	}
}

func TestVaultRoundTrip(t *testing.T) {
	v := newTestVault(t)

	if err := v.Save("acme", "core-sw1", testCred()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := v.Get("acme", "core-sw1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != testCred() {
		t.Errorf("Get = %+v, want %+v", got, testCred())
	}
}

func TestVaultMissingCredential(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save("acme", "core-sw1", testCred()); err != nil {
		t.Fatal(err)
	}

	_, err := v.Get("acme", "no-such-device")
	if !errors.Is(err, util.ErrCredentialNotFound) {
		t.Errorf("Get unknown device = %v, want ErrCredentialNotFound", err)
	}
	_, err = v.Get("other-customer", "core-sw1")
	if !errors.Is(err, util.ErrCredentialNotFound) {
		t.Errorf("Get unknown customer = %v, want ErrCredentialNotFound", err)
	}
}

func TestVaultEmptyFileMissing(t *testing.T) {
	v := newTestVault(t)
	_, err := v.Get("acme", "core-sw1")
	if !errors.Is(err, util.ErrCredentialNotFound) {
		t.Errorf("Get on absent vault = %v, want ErrCredentialNotFound", err)
	}
}

// A vault written under one key must not open under another; a wrong
// key is indistinguishable from corruption and reported as such.
func TestVaultWrongKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault")

	key1, _ := GenerateKey()
	t.Setenv(MasterKeyEnv, key1)
	v1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := v1.Save("acme", "core-sw1", testCred()); err != nil {
		t.Fatal(err)
	}

	key2, _ := GenerateKey()
	t.Setenv(MasterKeyEnv, key2)
	v2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = v2.Get("acme", "core-sw1")
	if !errors.Is(err, util.ErrVaultCorrupted) {
		t.Errorf("Get with wrong key = %v, want ErrVaultCorrupted", err)
	}
}

func TestVaultNoMasterKey(t *testing.T) {
	t.Setenv(MasterKeyEnv, "")
	t.Setenv(MasterKeyEnvLegacy, "")

	_, err := Open(filepath.Join(t.TempDir(), "vault"))
	if !errors.Is(err, util.ErrMasterKeyNotFound) {
		t.Errorf("Open without key = %v, want ErrMasterKeyNotFound", err)
	}
}

func TestVaultLegacyKeyEnv(t *testing.T) {
	key, _ := GenerateKey()
	t.Setenv(MasterKeyEnv, "")
	t.Setenv(MasterKeyEnvLegacy, key)

	if _, err := Open(filepath.Join(t.TempDir(), "vault")); err != nil {
		t.Errorf("Open with legacy env = %v", err)
	}
}

func TestVaultDelete(t *testing.T) {
	v := newTestVault(t)
	if err := v.Save("acme", "core-sw1", testCred()); err != nil {
		t.Fatal(err)
	}
	if err := v.Delete("acme", "core-sw1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Get("acme", "core-sw1"); !errors.Is(err, util.ErrCredentialNotFound) {
		t.Errorf("Get after delete = %v, want ErrCredentialNotFound", err)
	}
	if err := v.Delete("acme", "core-sw1"); err != nil {
		t.Errorf("double delete = %v, want no-op", err)
	}
}

func TestVaultLists(t *testing.T) {
	v := newTestVault(t)
	for _, pair := range [][2]string{{"acme", "sw1"}, {"acme", "sw2"}, {"globex", "fw1"}} {
		if err := v.Save(pair[0], pair[1], testCred()); err != nil {
			t.Fatal(err)
		}
	}

	customers, err := v.ListCustomers()
	if err != nil {
		t.Fatal(err)
	}
	if len(customers) != 2 {
		t.Errorf("ListCustomers = %v", customers)
	}

	devices, err := v.ListDevices("acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Errorf("ListDevices(acme) = %v", devices)
	}
}

func TestVaultSNMPCommunities(t *testing.T) {
	v := newTestVault(t)
	withSNMP := testCred()
	withoutSNMP := testCred()
	withoutSNMP.SNMPCommunity = ""

	if err := v.Save("acme", "sw1", withSNMP); err != nil {
		t.Fatal(err)
	}
	if err := v.Save("acme", "sw2", withoutSNMP); err != nil {
		t.Fatal(err)
	}

	communities, err := v.SNMPCommunities()
	if err != nil {
		t.Fatal(err)
	}
	if communities[[2]string{"acme", "sw1"}] != "private" {
		t.Errorf("communities = %v", communities)
	}
	if _, ok := communities[[2]string{"acme", "sw2"}]; ok {
		t.Error("device without community should be absent")
	}
}
