// Package standard provides the status components every app carries.
package standard

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ServiceType represents how the app is running
type ServiceType string

const (
	ServiceTypeSystemd    ServiceType = "systemd"
	ServiceTypeDocker     ServiceType = "docker"
	ServiceTypeStandalone ServiceType = "standalone"
)

// ServiceInfo holds app runtime information.
type ServiceInfo struct {
	Name             string
	Version          string
	InstanceID       string
	StartTime        time.Time
	ServiceType      ServiceType
	GoVersion        string
	BinaryPath       string
	WorkingDirectory string
	User             string
	UID              int
	GID              int
}

// AutoDetect creates ServiceInfo with auto-detected runtime information.
func AutoDetect(name, version string) *ServiceInfo {
	binaryPath, _ := os.Executable()
	if binaryPath != "" {
		if resolved, err := filepath.EvalSymlinks(binaryPath); err == nil {
			binaryPath = resolved
		}
	}

	workingDir, _ := os.Getwd()

	userName := "unknown"
	uid := 0
	gid := 0

	if currentUser, err := user.Current(); err == nil {
		userName = currentUser.Username
		if parsedUID, err := strconv.Atoi(currentUser.Uid); err == nil {
			uid = parsedUID
		}
		if parsedGID, err := strconv.Atoi(currentUser.Gid); err == nil {
			gid = parsedGID
		}
	}

	return &ServiceInfo{
		Name:             name,
		Version:          version,
		InstanceID:       uuid.NewString(),
		StartTime:        time.Now().UTC(),
		ServiceType:      detectServiceType(),
		GoVersion:        runtime.Version(),
		BinaryPath:       binaryPath,
		WorkingDirectory: workingDir,
		User:             userName,
		UID:              uid,
		GID:              gid,
	}
}

// GetData converts ServiceInfo to component data.
func (s *ServiceInfo) GetData() interface{} {
	// RFC3339 without nanoseconds, +00:00 instead of Z
	startTimeFormatted := s.StartTime.Format("2006-01-02T15:04:05+00:00")

	return map[string]interface{}{
		"name":              s.Name,
		"version":           s.Version,
		"instance_id":       s.InstanceID,
		"pid":               os.Getpid(),
		"start_time":        startTimeFormatted,
		"uptime_sec":        int64(time.Since(s.StartTime).Seconds()),
		"type":              string(s.ServiceType),
		"go_version":        s.GoVersion,
		"binary_path":       s.BinaryPath,
		"working_directory": s.WorkingDirectory,
		"user":              s.User,
		"uid":               s.UID,
		"gid":               s.GID,
	}
}

// detectServiceType determines how the app is running. App Lab apps run
// in containers, bench builds usually under systemd or a shell.
func detectServiceType() ServiceType {
	// INVOCATION_ID is set by systemd
	if os.Getenv("INVOCATION_ID") != "" {
		return ServiceTypeSystemd
	}

	if _, err := os.Stat("/.dockerenv"); err == nil {
		return ServiceTypeDocker
	}

	if data, err := os.ReadFile("/proc/self/cgroup"); err == nil {
		if containsAny(string(data), []string{"docker", "containerd"}) {
			return ServiceTypeDocker
		}
	}

	if data, err := os.ReadFile("/proc/1/comm"); err == nil {
		if string(data) == "systemd\n" {
			return ServiceTypeSystemd
		}
	}

	return ServiceTypeStandalone
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
