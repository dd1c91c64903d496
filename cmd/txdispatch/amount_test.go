package main

import (
	"math/big"
	"testing"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"1000", "1000", false},
		{"1000wei", "1000", false},
		{"1gwei", "1000000000", false},
		{"0.001eth", "1000000000000000", false},
		{"0.001 ETH", "1000000000000000", false},
		{"100ETH", "100000000000000000000", false},
		{"1.5", "", true},
		{"-1", "", true},
		{"abc", "", true},
		{"0.0000000000000000001eth", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAmount(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseAmount(%q) = %s, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAmount(%q) error = %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("parseAmount(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatEther(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	if got := formatEther(wei); got != "1.500000" {
		t.Errorf("formatEther() = %q, want 1.500000", got)
	}
	if got := formatEther(nil); got != "-" {
		t.Errorf("formatEther(nil) = %q, want -", got)
	}
}
