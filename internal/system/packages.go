// Package system answers questions about the installed system: packages,
// flatpaks, services and commands.
package system

import (
	"bufio"
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// RunFunc runs a command and returns its stdout. A non-zero exit is an error.
type RunFunc func(name string, args ...string) ([]byte, error)

// HelperSource resolves the AUR helper, if any.
type HelperSource interface {
	Resolve() (string, bool)
}

type Checker struct {
	run       RunFunc
	helpers   HelperSource
	lookPath  func(string) (string, error)
	osRelease string
	logger    *slog.Logger
}

type Option func(*Checker)

func WithRunFunc(fn RunFunc) Option {
	return func(c *Checker) { c.run = fn }
}

func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *Checker) { c.lookPath = fn }
}

func WithOSRelease(path string) Option {
	return func(c *Checker) { c.osRelease = path }
}

func NewChecker(helpers HelperSource, opts ...Option) *Checker {
	c := &Checker{
		run:       runCommand,
		helpers:   helpers,
		lookPath:  exec.LookPath,
		osRelease: "/etc/os-release",
		logger:    slog.With("component", "system"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func runCommand(name string, args ...string) ([]byte, error) {
	return exec.Command(name, args...).Output()
}

func (c *Checker) helper() (string, bool) {
	if c.helpers == nil {
		return "", false
	}
	return c.helpers.Resolve()
}

// PackageInstalled asks the AUR helper first, then pacman.
func (c *Checker) PackageInstalled(pkg string) bool {
	if helper, ok := c.helper(); ok {
		if _, err := c.run(helper, "-Q", pkg); err == nil {
			c.logger.Debug("Package found.", "package", pkg, "via", helper)
			return true
		}
	}

	if _, err := c.run("pacman", "-Q", pkg); err == nil {
		c.logger.Debug("Package found.", "package", pkg, "via", "pacman")
		return true
	}

	c.logger.Debug("Package not installed.", "package", pkg)
	return false
}

// PackagesInstalled checks each package in turn.
func (c *Checker) PackagesInstalled(pkgs []string) map[string]bool {
	result := make(map[string]bool, len(pkgs))
	for _, pkg := range pkgs {
		result[pkg] = c.PackageInstalled(pkg)
	}
	return result
}

// FlatpakInstalled matches against apps, runtimes and extensions.
func (c *Checker) FlatpakInstalled(ref string) bool {
	out, err := c.run("flatpak", "list")
	if err != nil {
		return false
	}
	return bytes.Contains(out, []byte(ref))
}

func (c *Checker) ServiceEnabled(service string) bool {
	_, err := c.run("systemctl", "is-enabled", service)
	return err == nil
}

func (c *Checker) ServiceActive(service string) bool {
	_, err := c.run("systemctl", "is-active", service)
	return err == nil
}

func (c *Checker) CommandAvailable(command string) bool {
	_, err := c.lookPath(command)
	return err == nil
}

// PackagesMatching returns installed package names whose "name version" line
// contains pattern.
func (c *Checker) PackagesMatching(pattern string) []string {
	var out []byte
	var err error
	if helper, ok := c.helper(); ok {
		out, err = c.run(helper, "-Q")
	}
	if out == nil || err != nil {
		out, err = c.run("pacman", "-Q")
		if err != nil {
			return nil
		}
	}

	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, pattern) {
			continue
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			names = append(names, fields[0])
		}
	}
	return names
}

// Distribution returns NAME and VERSION from os-release.
func (c *Checker) Distribution() (name, version string, ok bool) {
	data, err := os.ReadFile(c.osRelease)
	if err != nil {
		return "", "", false
	}

	for _, line := range strings.Split(string(data), "\n") {
		if v, found := strings.CutPrefix(line, "NAME="); found {
			name = strings.Trim(v, `"`)
		} else if v, found := strings.CutPrefix(line, "VERSION="); found {
			version = strings.Trim(v, `"`)
		}
	}
	return name, version, name != "" && version != ""
}

func (c *Checker) IsXeroLinux() bool {
	data, err := os.ReadFile(c.osRelease)
	if err != nil {
		return false
	}
	return bytes.Contains(bytes.ToLower(data), []byte("xerolinux"))
}
