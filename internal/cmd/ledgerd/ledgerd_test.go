package ledgerd

import (
	"encoding/json"
	"flag"
	"testing"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("ledgerd", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPPort != 8090 || cfg.GRPCPort != 8091 {
		t.Fatalf("unexpected default ports: %+v", cfg)
	}
	if cfg.MaxRetry != 5 {
		t.Fatalf("expected default max retry 5, got %d", cfg.MaxRetry)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("EVENTCORE_LEDGERD_HTTP_PORT", "9000")

	fs := flag.NewFlagSet("ledgerd", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-grpc-port", "9001"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.HTTPPort != 9000 {
		t.Fatalf("expected env override for http port, got %d", cfg.HTTPPort)
	}
	if cfg.GRPCPort != 9001 {
		t.Fatalf("expected flag override for grpc port, got %d", cfg.GRPCPort)
	}
}

func TestDecodeBankCommandDeposit(t *testing.T) {
	raw, _ := json.Marshal(wireCommand{AccountID: "acct-1", Type: "deposit", Amount: 100})
	streamID, cmd, err := decodeBankCommand(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(streamID) != "acct-1" || cmd.Deposit == nil || cmd.Deposit.Amount != 100 {
		t.Fatalf("unexpected decode result: %s %+v", streamID, cmd)
	}
}

func TestDecodeBankCommandRejectsUnknownType(t *testing.T) {
	raw, _ := json.Marshal(wireCommand{AccountID: "acct-1", Type: "teleport"})
	if _, _, err := decodeBankCommand(raw); err == nil {
		t.Fatal("expected an error for an unknown command type")
	}
}
