package main

import (
	"bytes"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if got := out.String(); got != "monsmatics "+AppVersion+"\n" {
		t.Errorf("version output = %q", got)
	}
}

func TestRootCommands(t *testing.T) {
	for _, name := range []string{"chat", "live", "serve", "version"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered (got %v, %v)", name, cmd, err)
		}
	}
	if rootCmd.PersistentFlags().Lookup("data-dir") == nil {
		t.Error("missing --data-dir flag")
	}
}

func TestNewLogger(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		logger, err := newLogger(verbose)
		if err != nil {
			t.Fatalf("newLogger(%v) error: %v", verbose, err)
		}
		logger.Debug("test")
	}
}
