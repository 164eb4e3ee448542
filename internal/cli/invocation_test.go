package cli

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseInvocationVerbose(t *testing.T) {
	withVerbose := [][]string{
		{"-v"},
		{"--verbose"},
		{"--input", "a.txt", "-v"},
		{"-v", "--output", "b.txt"},
		{"positional", "--verbose", "more"},
		{"--unknown-flag", "-v"},
		{"-vi", "a.txt"},
	}
	for _, args := range withVerbose {
		inv, err := ParseInvocation(args)
		if err != nil {
			t.Fatalf("ParseInvocation(%q) failed: %v", args, err)
		}
		if !inv.Verbose {
			t.Errorf("ParseInvocation(%q).Verbose = false, want true", args)
		}
	}

	withoutVerbose := [][]string{
		{},
		{"--input", "a.txt"},
		{"-o", "b.txt", "--unknown"},
		{"--verbose=false"},
		{"verbose", "v"},
	}
	for _, args := range withoutVerbose {
		inv, err := ParseInvocation(args)
		if err != nil {
			t.Fatalf("ParseInvocation(%q) failed: %v", args, err)
		}
		if inv.Verbose {
			t.Errorf("ParseInvocation(%q).Verbose = true, want false", args)
		}
	}
}

func TestParseInvocationInputOutputOrder(t *testing.T) {
	want := InvocationConfig{Input: "foo", Output: "bar"}

	orders := [][]string{
		{"--input", "foo", "--output", "bar"},
		{"--output", "bar", "--input", "foo"},
		{"-i", "foo", "-o", "bar"},
		{"-o", "bar", "-i", "foo"},
		{"--input=foo", "--output=bar"},
		{"-obar", "-ifoo"},
		{"--color", "--output", "bar", "stray", "--input", "foo"},
	}
	for _, args := range orders {
		got, err := ParseInvocation(args)
		if err != nil {
			t.Fatalf("ParseInvocation(%q) failed: %v", args, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("ParseInvocation(%q) mismatch (-want +got):\n%s", args, diff)
		}
	}
}

func TestParseInvocationConfigFlagAndHelp(t *testing.T) {
	got, err := ParseInvocation([]string{"--help", "--config", "/etc/vault.yaml", "-h"})
	if err != nil {
		t.Fatalf("ParseInvocation failed: %v", err)
	}
	if got.ConfigFile != "/etc/vault.yaml" {
		t.Errorf("ConfigFile = %q, want /etc/vault.yaml", got.ConfigFile)
	}
}

func TestParseInvocationValueFlagNeverSwallowsAFlag(t *testing.T) {
	tests := []struct {
		args []string
		want InvocationConfig
	}{
		{args: []string{"--input", "-v"}, want: InvocationConfig{Verbose: true}},
		{args: []string{"-o", "--verbose"}, want: InvocationConfig{Verbose: true}},
		{args: []string{"-v", "--input"}, want: InvocationConfig{Verbose: true}},
		{args: []string{"-v", "-o"}, want: InvocationConfig{Verbose: true}},
		{args: []string{"-o", "-i", "foo"}, want: InvocationConfig{Input: "foo"}},
		{args: []string{"-vi", "--output", "bar"}, want: InvocationConfig{Verbose: true, Output: "bar"}},
		{args: []string{"--config", "--verbose"}, want: InvocationConfig{Verbose: true}},
		{args: []string{"-i", "-", "-o", "-"}, want: InvocationConfig{Input: "-", Output: "-"}},
		{args: []string{"--input=-v"}, want: InvocationConfig{Input: "-v"}},
	}

	for _, tt := range tests {
		got, err := ParseInvocation(tt.args)
		if err != nil {
			t.Fatalf("ParseInvocation(%q) failed: %v", tt.args, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("ParseInvocation(%q) mismatch (-want +got):\n%s", tt.args, diff)
		}
	}
}

func TestNormalizeArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "value present", args: []string{"-i", "foo"}, want: []string{"-i", "foo"}},
		{name: "stream value", args: []string{"--output", "-"}, want: []string{"--output", "-"}},
		{name: "trailing flag", args: []string{"-v", "--input"}, want: []string{"-v", "--input="}},
		{name: "flag as value", args: []string{"-o", "--verbose"}, want: []string{"--output=", "--verbose"}},
		{name: "cluster", args: []string{"-vo", "-i", "x"}, want: []string{"-v", "--output=", "-i", "x"}},
		{name: "attached value", args: []string{"-ifoo", "--output=bar"}, want: []string{"-ifoo", "--output=bar"}},
		{name: "terminator", args: []string{"--", "-i"}, want: []string{"--", "-i"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, normalizeArgs(tt.args)); diff != "" {
				t.Errorf("normalizeArgs(%q) mismatch (-want +got):\n%s", tt.args, diff)
			}
		})
	}
}

func TestParseInvocationBadBoolValue(t *testing.T) {
	_, err := ParseInvocation([]string{"--verbose=maybe"})
	var usageErr *UsageError
	if !errors.As(err, &usageErr) {
		t.Errorf("ParseInvocation error = %v, want *UsageError", err)
	}
}
