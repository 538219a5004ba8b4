// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	rpdocontext "code.hybscloud.com/rpdo/context"
	"code.hybscloud.com/rpdo/rpdoerr"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Context.RegisterCount != 8 {
		t.Errorf("expected register_count 8, got %d", cfg.Context.RegisterCount)
	}
	if cfg.Stream.MTU != 16384 {
		t.Errorf("expected mtu 16384, got %d", cfg.Stream.MTU)
	}
	if cfg.ErrorTable != "compact" {
		t.Errorf("expected error_table compact, got %s", cfg.ErrorTable)
	}
}

func TestLoadValidConfig(t *testing.T) {
	yamlSrc := `
host_id: 7
context:
  register_count: 4
  register_size: 64
  flexible: true
  locking: spin_park
stream:
  mtu: 2048
  zero_copy_threshold: 512
  always_flush: true
error_table: legacy
`
	dir := t.TempDir()
	path := filepath.Join(dir, "rpdo.yaml")
	if err := os.WriteFile(path, []byte(yamlSrc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.HostID != 7 {
		t.Errorf("expected host_id 7, got %d", cfg.HostID)
	}
	if cfg.Context.RegisterCount != 4 || cfg.Context.RegisterSize != 64 || !cfg.Context.Flexible {
		t.Errorf("unexpected context config: %+v", cfg.Context)
	}
	if cfg.Stream.MTU != 2048 || cfg.Stream.ZeroCopyThreshold != 512 || !cfg.Stream.AlwaysFlush {
		t.Errorf("unexpected stream config: %+v", cfg.Stream)
	}
	if cfg.LockBackend() != rpdocontext.SpinPark {
		t.Errorf("expected SpinPark lock backend")
	}
	if cfg.Codec().Table() != rpdoerr.LegacyTable {
		t.Errorf("expected legacy codec table")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateRejectsBadLocking(t *testing.T) {
	cfg := Default()
	cfg.Context.Locking = "priority-inheriting"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid locking backend")
	}
}

func TestValidateRejectsOversizedMTU(t *testing.T) {
	cfg := Default()
	cfg.Stream.MTU = 20000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for oversized mtu")
	}
}

func TestValidateRejectsBadErrorTable(t *testing.T) {
	cfg := Default()
	cfg.ErrorTable = "made-up"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid error_table")
	}
}

func TestNewContextHonorsFlexibleFlag(t *testing.T) {
	cfg := Default()
	cfg.Context.Flexible = true
	cfg.Context.RegisterCount = 1
	cfg.Context.RegisterSize = 4
	ctx := cfg.NewContext()
	if err := ctx.SetBytes(0, 10, []byte{1, 2}); err != nil {
		t.Fatalf("expected flexible growth to succeed, got %v", err)
	}
}
