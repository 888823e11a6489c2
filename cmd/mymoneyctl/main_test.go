package main

import (
	"testing"

	"github.com/punchamoorthee/mymoney/internal/service"
)

func TestSweepError(t *testing.T) {
	tests := []struct {
		name    string
		res     service.CloneResult
		strict  bool
		wantErr bool
	}{
		{"clean run", service.CloneResult{Processed: 2, Cloned: 2}, true, false},
		{"failures reported only", service.CloneResult{Processed: 2, Cloned: 1, Failed: 1}, false, false},
		{"failures in strict mode", service.CloneResult{Processed: 2, Cloned: 1, Failed: 1}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := sweepError(tt.res, tt.strict)
			if (err != nil) != tt.wantErr {
				t.Errorf("sweepError() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSweepReport(t *testing.T) {
	got := sweepReport(service.CloneResult{Processed: 3, Cloned: 1, Failed: 1, Skipped: 1})
	want := "Processed 3 scheduler(s): 1 cloned, 1 failed, 1 already handled."
	if got != want {
		t.Errorf("sweepReport() = %q, want %q", got, want)
	}
}

func TestCloneScheduledFlags(t *testing.T) {
	strict := cloneScheduledCmd.Flags().Lookup("strict")
	if strict == nil || strict.DefValue != "false" {
		t.Errorf("strict flag = %+v, want default false", strict)
	}
}
