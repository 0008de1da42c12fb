package namepolicy

import (
	"context"
	"errors"
	"testing"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean name", "report.txt", "report.txt"},
		{"forbidden chars", `a<b>c:d"e/f\g|h?i*j.txt`, "a_b_c_d_e_f_g_h_i_j.txt"},
		{"reserved with extension", "CON.txt", "CON_.txt"},
		{"reserved bare", "CON", "CON_"},
		{"reserved lowercase", "nul.dat", "nul_.dat"},
		{"reserved com port", "COM7.log", "COM7_.log"},
		{"substring not reserved", "Console.txt", "Console.txt"},
		{"reserved only in base component", "notes.CON", "notes.CON"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.in); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"report.txt", `a<b>c.txt`, "CON.txt", "CON", "COM9", "LPT1.bin",
		"weird?name*here", "", "a.b.c", "-1", "file-1.txt",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestAlternateName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"file.txt", "file-1.txt"},
		{"file-1.txt", "file-2.txt"},
		{"file-9.txt", "file-10.txt"},
		{"README", "README-1"},
		{"README-1", "README-2"},
		{"archive.tar.gz", "archive.tar-1.gz"},
		{"my-notes.txt", "my-notes-1.txt"},
		{"v-2", "v-3"},
	}
	for _, tt := range tests {
		if got := AlternateName(tt.in); got != tt.want {
			t.Errorf("AlternateName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAlternateNameChain(t *testing.T) {
	name := "file.txt"
	want := []string{"file-1.txt", "file-2.txt", "file-3.txt"}
	for _, w := range want {
		name = AlternateName(name)
		if name != w {
			t.Fatalf("chain produced %q, want %q", name, w)
		}
	}
}

func TestNextFreeName(t *testing.T) {
	taken := map[string]bool{"file-1.txt": true, "file-2.txt": true}
	got, err := NextFreeName(context.Background(), "file.txt", func(_ context.Context, c string) (bool, error) {
		return taken[c], nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "file-3.txt" {
		t.Errorf("NextFreeName = %q, want file-3.txt", got)
	}
}

func TestNextFreeNameExhausted(t *testing.T) {
	_, err := NextFreeName(context.Background(), "file.txt", func(context.Context, string) (bool, error) {
		return true, nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestNextFreeNamePropagatesError(t *testing.T) {
	boom := errors.New("network down")
	_, err := NextFreeName(context.Background(), "file.txt", func(context.Context, string) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped network error, got %v", err)
	}
}
