package steamcmd

import (
	"errors"
	"strconv"
	"strings"
)

// Credentials is the transient secret material for a credentialed download.
// Values live only for the duration of one attempt and are fed to the child
// process over stdin; they never appear in the argument vector, in logs, or
// in any persisted record.
type Credentials struct {
	Username  string
	Password  string
	GuardCode string
}

// Request describes one download attempt.
type Request struct {
	AppID       int64
	InstallDir  string
	Anonymous   bool
	Credentials *Credentials
	Platform    string
	Validate    bool
}

func (r Request) validate() error {
	if r.AppID <= 0 {
		return errors.New("app id required")
	}
	if strings.TrimSpace(r.InstallDir) == "" {
		return errors.New("install directory required")
	}
	if !r.Anonymous {
		if r.Credentials == nil || strings.TrimSpace(r.Credentials.Username) == "" {
			return errors.New("credentialed request requires a username")
		}
	}
	return nil
}

// args builds the SteamCMD command line. Credentialed logins pass only the
// username; SteamCMD prompts for the password on stdin, which keeps the
// secret out of process listings.
func (r Request) args() []string {
	args := make([]string, 0, 10)
	if platform := strings.TrimSpace(r.Platform); platform != "" {
		args = append(args, "+@sSteamCmdForcePlatformType", platform)
	}
	args = append(args, "+force_install_dir", r.InstallDir)
	if r.Anonymous {
		args = append(args, "+login", "anonymous")
	} else {
		args = append(args, "+login", r.Credentials.Username)
	}
	args = append(args, "+app_update", strconv.FormatInt(r.AppID, 10))
	if r.Validate {
		args = append(args, "validate")
	}
	return append(args, "+quit")
}
