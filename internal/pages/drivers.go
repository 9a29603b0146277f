// Package pages holds the built-in plans offered by the toolkit.
package pages

import (
	"errors"
	"slices"

	"github.com/xerolinux/xero-toolkit/internal/models"
)

// GPU driver option keys.
const (
	OptNvidiaClosed = "nvidia_closed"
	OptNvidiaOpen   = "nvidia_open"
	OptCuda         = "cuda"
)

// NvidiaSetupScript configures the system after an NVIDIA driver install.
const NvidiaSetupScript = "/opt/xero-toolkit/scripts/nv-setup.sh"

var ErrDriverConflict = errors.New("cannot install both closed and open source NVIDIA drivers, please select only one")

// Option is one entry of a selection dialog.
type Option struct {
	Key         string
	Label       string
	Description string
}

var GPUDriverOptions = []Option{
	{OptNvidiaClosed, "NVIDIA Closed Source", "Proprietary NVIDIA drivers"},
	{OptNvidiaOpen, "NVIDIA Open Source", "Open source NVIDIA drivers (Turing+ GPUs)"},
	{OptCuda, "CUDA Toolkit", "NVIDIA CUDA Toolkit for GPU-accelerated computing"},
}

// GPUDriverSteps builds the install steps for the selected options.
func GPUDriverSteps(selected []string) ([]models.CommandStep, error) {
	closed := slices.Contains(selected, OptNvidiaClosed)
	open := slices.Contains(selected, OptNvidiaOpen)
	if closed && open {
		return nil, ErrDriverConflict
	}

	var steps []models.CommandStep

	if closed {
		steps = append(steps, models.Aur([]string{
			"-S", "--needed", "--noconfirm",
			"libvdpau", "egl-wayland", "nvidia-dkms", "nvidia-utils", "opencl-nvidia",
			"libvdpau-va-gl", "nvidia-settings", "vulkan-icd-loader", "lib32-nvidia-utils",
			"lib32-opencl-nvidia", "linux-firmware-nvidia", "lib32-vulkan-icd-loader",
		}, "Installing NVIDIA proprietary drivers..."))
	}

	if open {
		steps = append(steps, models.Aur([]string{
			"-S", "--needed", "--noconfirm",
			"libvdpau", "egl-wayland", "nvidia-utils", "opencl-nvidia", "libvdpau-va-gl",
			"nvidia-settings", "nvidia-open-dkms", "vulkan-icd-loader", "lib32-nvidia-utils",
			"lib32-opencl-nvidia", "linux-firmware-nvidia", "lib32-vulkan-icd-loader",
		}, "Installing NVIDIA open source drivers..."))
	}

	if slices.Contains(selected, OptCuda) {
		steps = append(steps, models.Aur(
			[]string{"-S", "--needed", "--noconfirm", "cuda", "cudnn"},
			"Installing CUDA Toolkit...",
		))
	}

	if closed || open {
		steps = append(steps, models.Privileged("bash", []string{NvidiaSetupScript}, "Configuring NVIDIA drivers..."))
	}

	return steps, nil
}

func GPUDriverPlan(selected []string) (*models.Plan, error) {
	steps, err := GPUDriverSteps(selected)
	if err != nil {
		return nil, err
	}
	return &models.Plan{
		Name:        "gpu-drivers",
		Title:       "GPU Driver Installation",
		Description: "NVIDIA drivers and CUDA toolkit",
		Steps:       steps,
	}, nil
}

func TailscalePlan() *models.Plan {
	return &models.Plan{
		Name:        "tailscale",
		Title:       "Install Tailscale VPN",
		Description: "Tailscale mesh VPN",
		Steps: []models.CommandStep{
			models.Privileged("bash", []string{
				"-c",
				"curl -fsSL https://raw.githubusercontent.com/xerolinux/xero-fixes/main/conf/install.sh | bash",
			}, "Installing Tailscale VPN..."),
		},
	}
}

func AsusRogPlan() *models.Plan {
	return &models.Plan{
		Name:        "asus-rog",
		Title:       "Install ASUS ROG Tools",
		Description: "ASUS ROG laptop control tools",
		Steps: []models.CommandStep{
			models.Aur([]string{
				"-S", "--noconfirm", "--needed", "rog-control-center", "asusctl", "supergfxctl",
			}, "Installing ASUS ROG control tools..."),
			models.Privileged("systemctl", []string{"enable", "--now", "asusd", "supergfxd"},
				"Enabling ASUS ROG services..."),
		},
	}
}

// Builtin returns the fixed built-in plans by name. The GPU plan depends on
// a selection and is built through GPUDriverPlan instead.
func Builtin() map[string]*models.Plan {
	plans := make(map[string]*models.Plan)
	for _, p := range []*models.Plan{TailscalePlan(), AsusRogPlan()} {
		plans[p.Name] = p
	}
	return plans
}
