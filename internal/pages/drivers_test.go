package pages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

func names(steps []models.CommandStep) []string {
	var out []string
	for _, s := range steps {
		out = append(out, s.Name)
	}
	return out
}

func TestGPUDriverSteps(t *testing.T) {
	tests := []struct {
		name     string
		selected []string
		want     []string
	}{
		{"nothing", nil, nil},
		{"cuda only", []string{OptCuda}, []string{"Installing CUDA Toolkit..."}},
		{"closed", []string{OptNvidiaClosed}, []string{
			"Installing NVIDIA proprietary drivers...",
			"Configuring NVIDIA drivers...",
		}},
		{"open with cuda", []string{OptCuda, OptNvidiaOpen}, []string{
			"Installing NVIDIA open source drivers...",
			"Installing CUDA Toolkit...",
			"Configuring NVIDIA drivers...",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := GPUDriverSteps(tt.selected)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(steps))
		})
	}
}

func TestGPUDriverStepsConflict(t *testing.T) {
	_, err := GPUDriverSteps([]string{OptNvidiaClosed, OptNvidiaOpen})
	assert.ErrorIs(t, err, ErrDriverConflict)

	_, err = GPUDriverPlan([]string{OptNvidiaOpen, OptNvidiaClosed, OptCuda})
	assert.ErrorIs(t, err, ErrDriverConflict)
}

func TestGPUDriverStepTypes(t *testing.T) {
	steps, err := GPUDriverSteps([]string{OptNvidiaClosed})
	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, models.CommandAur, steps[0].Type)
	assert.Contains(t, steps[0].Args, "nvidia-dkms")
	assert.NotContains(t, steps[0].Args, "nvidia-open-dkms")
	assert.Equal(t, models.Privileged("bash", []string{NvidiaSetupScript}, "Configuring NVIDIA drivers..."), steps[1])
}

func TestBuiltin(t *testing.T) {
	plans := Builtin()
	require.Contains(t, plans, "tailscale")
	require.Contains(t, plans, "asus-rog")

	asus := plans["asus-rog"]
	assert.Equal(t, "Install ASUS ROG Tools", asus.Title)
	assert.Equal(t, []string{"enable", "--now", "asusd", "supergfxd"}, asus.Steps[1].Args)
	assert.True(t, asus.NeedsPrivileges())
}
