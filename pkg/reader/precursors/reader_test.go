package precursors

import (
	"errors"
	"strings"
	"testing"

	"github.com/ChrisMcGann/MSIAcq/pkg/core"
	"github.com/google/go-cmp/cmp"
)

func TestReader(t *testing.T) {
	input := `id,mz,mobility_lower,mobility_upper,energies,usage
PC 34:1,760.5851,1.38,1.40,30;40;50,
LPC 16:0,496.3398,1.05,1.06,25; 35,35:2
,500,0.85,0.88,30,
`
	r := NewReader(strings.NewReader(input))
	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 precursors, got %d", len(got))
	}

	first := got[0]
	if first.ID != "PC 34:1" || first.MZ != 760.5851 {
		t.Errorf("Unexpected first precursor: %s", first.Name())
	}
	if first.Mobility != (core.MobilityRange{Lower: 1.38, Upper: 1.40}) {
		t.Errorf("Unexpected mobility: %v", first.Mobility)
	}
	if diff := cmp.Diff([]float64{30, 40, 50}, first.CollisionEnergies()); diff != "" {
		t.Errorf("Energies mismatch (-want +got):\n%s", diff)
	}

	second := got[1]
	if diff := cmp.Diff(map[float64]int{25: 0, 35: 2}, second.Ledger().Snapshot()); diff != "" {
		t.Errorf("Usage mismatch (-want +got):\n%s", diff)
	}

	if got[2].ID != "P4" {
		t.Errorf("Expected generated id P4, got %s", got[2].ID)
	}
}

func TestReaderDuplicateID(t *testing.T) {
	input := `id,mz,mobility_lower,mobility_upper,energies
x,500,0.85,0.86,30
x,700,0.95,0.96,30
`
	_, err := NewReader(strings.NewReader(input)).ReadAll()
	if !errors.Is(err, core.ErrInvalidConfig) {
		t.Fatalf("ReadAll() error = %v, want %v", err, core.ErrInvalidConfig)
	}
	if !strings.Contains(err.Error(), "line 3") || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("Expected both line numbers in error, got %v", err)
	}
}

func TestReaderErrors(t *testing.T) {
	header := "id,mz,mobility_lower,mobility_upper,energies,usage\n"

	tests := []struct {
		name    string
		input   string
		wantMsg string
		wantErr error
	}{
		{"missing header column", "id,mz\na,500\n", "line 1", nil},
		{"bad m/z", header + "a,abc,0.8,0.9,30,\n", "line 2", nil},
		{"bad energy", header + "a,500,0.8,0.9,30;x,\n", "line 2", nil},
		{"no energies", header + "a,500,0.8,0.9,,\n", "line 2", core.ErrInvalidConfig},
		{"duplicate energies", header + "a,500,0.8,0.9,30;30,\n", "line 2", core.ErrInvalidConfig},
		{"foreign usage", header + "a,500,0.8,0.9,30;40,45:1\n", "line 2", core.ErrEnergyNotCandidate},
		{"bad usage", header + "a,500,0.8,0.9,30;40,30-1\n", "line 2", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.input)).ReadAll()
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error containing %q, got %v", tt.wantMsg, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
